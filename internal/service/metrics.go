package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// guardDenialsTotal: отказы проверки «последний активный супер-администратор».
	guardDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_guard_denials_total",
			Help: "Количество изменений, отклонённых защитой последнего супер-администратора",
		},
		[]string{"operation"},
	)

	// compensationsTotal: откаты identity после неудачной записи в Directory.
	compensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_identity_compensations_total",
			Help: "Количество компенсирующих удалений identity в Keycloak",
		},
		[]string{"outcome"},
	)

	// signInTotal: попытки входа по результату.
	signInTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ad_sign_in_total",
			Help: "Количество попыток входа администраторов",
		},
		[]string{"outcome"},
	)
)
