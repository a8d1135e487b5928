package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// sessionRefreshTotal: прозрачные refresh сессий по результату.
	sessionRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_session_refresh_total",
			Help: "Количество прозрачных обновлений сессии",
		},
		[]string{"outcome"},
	)

	// authRejectionsTotal: отказы в аутентификации и авторизации по причине.
	authRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_auth_rejections_total",
			Help: "Количество отказов Session Verifier",
		},
		[]string{"reason"},
	)
)
