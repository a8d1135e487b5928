package pages

import (
	"context"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/Dibo68/aanexa-admin/internal/domain/model"
	"github.com/Dibo68/aanexa-admin/internal/i18n"
)

// AdminsData: данные страницы управления учётными записями.
type AdminsData struct {
	Principal model.Principal
	Items     []*model.AdminAccount
	Total     int
	Limit     int
	Offset    int
	Search    string
	Flash     Flash
}

// Admins: список учётных записей с формами создания, изменения и удаления.
// Формы отправляются на сервер, где каждое действие проверяется заново.
func Admins(data AdminsData) templ.Component {
	return component(func(ctx context.Context, h *htmlWriter) {
		h.flash(data.Flash)

		h.raw(`<div class="card"><h1>`)
		h.text(i18n.T(ctx, "admins.title"))
		h.raw(`</h1><form class="inline" method="get" action="/admin/admins"><input type="search" name="search"`)
		h.attr("value", data.Search)
		h.attr("placeholder", i18n.T(ctx, "admins.search"))
		h.raw(`><button class="secondary" type="submit">`)
		h.text(i18n.T(ctx, "admins.filter"))
		h.raw(`</button></form>`)

		if len(data.Items) == 0 {
			h.raw(`<p class="muted">`)
			h.text(i18n.T(ctx, "admins.empty"))
			h.raw(`</p>`)
		} else {
			adminsTable(ctx, h, data)
		}
		pager(ctx, h, data)
		h.raw(`</div>`)

		createForm(ctx, h)
	})
}

func adminsTable(ctx context.Context, h *htmlWriter, data AdminsData) {
	h.raw(`<table><thead><tr>`)
	for _, key := range []string{"admins.email", "admins.full_name", "admins.role", "admins.status", "admins.last_login", "admins.actions"} {
		h.raw(`<th>`)
		h.text(i18n.T(ctx, key))
		h.raw(`</th>`)
	}
	h.raw(`</tr></thead><tbody>`)

	for _, a := range data.Items {
		self := a.ID == data.Principal.AccountID
		action := "/admin/admins/" + a.ID

		h.raw(`<tr><td>`)
		h.text(a.Email)
		if self {
			h.raw(` <span class="muted">(`)
			h.text(i18n.T(ctx, "admins.you"))
			h.raw(`)</span>`)
		}
		h.raw(`</td><td>`)
		h.text(a.FullName)
		h.raw(`</td><td colspan="2"><form class="inline" method="post"`)
		h.href("action", action)
		h.raw(`>`)
		roleSelect(ctx, h, a.Role)
		statusSelect(ctx, h, a.Status)
		h.raw(`<button class="secondary" type="submit">`)
		h.text(i18n.T(ctx, "admins.save"))
		h.raw(`</button></form></td><td>`)
		if a.LastLogin != nil {
			h.text(formatTime(a.LastLogin))
		} else {
			h.raw(`<span class="muted">`)
			h.text(i18n.T(ctx, "admins.never"))
			h.raw(`</span>`)
		}
		h.raw(`</td><td>`)
		if !self {
			h.raw(`<form class="inline" method="post"`)
			h.href("action", action+"/delete")
			h.raw(`><button class="danger" type="submit"`)
			h.attr("onclick", "return confirm(this.dataset.confirm)")
			h.attr("data-confirm", i18n.Tf(ctx, "admins.delete_confirm", a.Email))
			h.raw(`>`)
			h.text(i18n.T(ctx, "admins.delete"))
			h.raw(`</button></form>`)
		}
		h.raw(`</td></tr>`)
	}
	h.raw(`</tbody></table>`)
}

func roleSelect(ctx context.Context, h *htmlWriter, current model.Role) {
	h.raw(`<select name="role"`)
	h.attr("aria-label", i18n.T(ctx, "admins.role"))
	h.raw(`>`)
	for _, r := range []model.Role{model.RoleAdmin, model.RoleSuperAdmin} {
		h.raw(`<option`)
		h.attr("value", string(r))
		if r == current {
			h.raw(` selected`)
		}
		h.raw(`>`)
		h.text(roleLabel(ctx, r))
		h.raw(`</option>`)
	}
	h.raw(`</select>`)
}

func statusSelect(ctx context.Context, h *htmlWriter, current model.Status) {
	h.raw(`<select name="status"`)
	h.attr("aria-label", i18n.T(ctx, "admins.status"))
	h.raw(`>`)
	for _, s := range []model.Status{model.StatusActive, model.StatusInactive} {
		h.raw(`<option`)
		h.attr("value", string(s))
		if s == current {
			h.raw(` selected`)
		}
		h.raw(`>`)
		h.text(statusLabel(ctx, s))
		h.raw(`</option>`)
	}
	h.raw(`</select>`)
}

func pager(ctx context.Context, h *htmlWriter, data AdminsData) {
	if data.Total <= data.Limit {
		return
	}
	link := func(offset int, key string) {
		q := url.Values{"offset": {strconv.Itoa(offset)}}
		if data.Search != "" {
			q.Set("search", data.Search)
		}
		h.raw(`<a`)
		h.href("href", "/admin/admins?"+q.Encode())
		h.raw(`>`)
		h.text(i18n.T(ctx, key))
		h.raw(`</a>`)
	}

	h.raw(`<div class="pager"><span>`)
	if data.Offset > 0 {
		link(max(data.Offset-data.Limit, 0), "admins.prev")
	}
	h.raw(`</span><span class="muted">`)
	h.text(i18n.Tf(ctx, "admins.range", data.Offset+1, min(data.Offset+len(data.Items), data.Total), data.Total))
	h.raw(`</span><span>`)
	if data.Offset+data.Limit < data.Total {
		link(data.Offset+data.Limit, "admins.next")
	}
	h.raw(`</span></div>`)
}

func createForm(ctx context.Context, h *htmlWriter) {
	h.raw(`<div class="card"><h2>`)
	h.text(i18n.T(ctx, "admins.create_title"))
	h.raw(`</h2><form class="stack" method="post" action="/admin/admins">`)
	field := func(id, typ, key, autocomplete string) {
		h.raw(`<label`)
		h.attr("for", "new-"+id)
		h.raw(`>`)
		h.text(i18n.T(ctx, key))
		h.raw(`</label><input required`)
		h.attr("id", "new-"+id)
		h.attr("name", id)
		h.attr("type", typ)
		h.attr("autocomplete", autocomplete)
		h.raw(`>`)
	}
	field("email", "email", "admins.email", "off")
	field("full_name", "text", "admins.full_name", "off")
	field("password", "password", "admins.password", "new-password")
	h.raw(`<label>`)
	h.text(i18n.T(ctx, "admins.role"))
	h.raw(`</label>`)
	roleSelect(ctx, h, model.RoleAdmin)
	h.raw(`<button type="submit">`)
	h.text(i18n.T(ctx, "admins.create"))
	h.raw(`</button></form></div>`)
}
