package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"rolechat/internal/adapter/storage/avatar"
	"rolechat/internal/domain/roleplay/port"
	applog "rolechat/internal/platform/log"
)

// RoleHandler 角色 API（multipart 表单，可带头像）
type RoleHandler struct {
	roles     port.RoleStore
	avatars   avatar.Store
	images    *imageResolver
	maxFileMB int
}

func NewRoleHandler(roles port.RoleStore, avatars avatar.Store, images *imageResolver, maxFileMB int) *RoleHandler {
	if maxFileMB <= 0 {
		maxFileMB = 10
	}
	return &RoleHandler{roles: roles, avatars: avatars, images: images, maxFileMB: maxFileMB}
}

func (h *RoleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/roles", func(r chi.Router) {
		r.With(requireUser).Post("/create", h.CreateRole)
		r.Get("/list", h.ListRoles)
		r.With(requireUser).Get("/my", h.ListMyRoles)
		r.Get("/public", h.ListPublicRoles)
		r.With(requireUser).Get("/chatting", h.ListChattingRoles)
		r.Get("/{id}", h.GetRole)
		r.Put("/update/{id}", h.UpdateRole)
		r.Delete("/delete/{id}", h.DeleteRole)
	})
}

// roleForm 解析后的表单字段；未出现的字段为 nil
type roleForm struct {
	patch port.RolePatch
	image *string
}

func formValue(r *http.Request, key string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	vals, ok := r.MultipartForm.Value[key]
	if !ok || len(vals) == 0 {
		return nil
	}
	v := strings.TrimSpace(vals[0])
	return &v
}

// parseRoleForm 解析 multipart 表单并保存头像
func (h *RoleHandler) parseRoleForm(w http.ResponseWriter, r *http.Request) (*roleForm, bool) {
	limit := int64(h.maxFileMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	if err := r.ParseMultipartForm(limit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return nil, false
	}

	f := &roleForm{}
	p := &f.patch
	p.Name = formValue(r, "name")
	p.Occupation = formValue(r, "occupation")
	p.Description = formValue(r, "description")
	p.Personality = formValue(r, "personality")
	p.SpeakingStyle = formValue(r, "speaking_style")
	p.Hobbies = formValue(r, "hobbies")
	p.Worldview = formValue(r, "worldview")
	p.Category = formValue(r, "category")

	if v := formValue(r, "age"); v != nil {
		if *v == "" {
			p.ClearAge = true
		} else {
			age, err := strconv.Atoi(*v)
			if err != nil || age < 0 {
				writeError(w, http.StatusBadRequest, "invalid age")
				return nil, false
			}
			p.Age = &age
		}
	}
	if v := formValue(r, "is_public"); v != nil && *v != "" {
		b, err := strconv.ParseBool(*v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid is_public")
			return nil, false
		}
		p.IsPublic = &b
	}

	file, header, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return f, true
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image")
		return nil, false
	}
	defer file.Close()

	ext, err := avatar.NormalizeExt(header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, avatar.ErrUnsupportedExt.Error())
		return nil, false
	}
	if h.avatars == nil {
		writeError(w, http.StatusInternalServerError, "avatar storage is not configured")
		return nil, false
	}
	ref, err := h.avatars.Save(r.Context(), ext, file, header.Size)
	if err != nil {
		applog.Error("[API/Roles] Avatar save failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save image")
		return nil, false
	}
	f.image = &ref
	return f, true
}

func (h *RoleHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	p := MustPrincipalFrom(r.Context())
	form, ok := h.parseRoleForm(w, r)
	if !ok {
		return
	}
	if form.patch.Name == nil || *form.patch.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	role := &port.Role{UserID: p.UserID}
	form.patch.Image = form.image
	form.patch.Apply(role)
	if err := h.roles.CreateRole(r.Context(), role); err != nil {
		writeDomainError(w, err, "failed to create role")
		return
	}
	applog.Info("[API/Roles] ✅ Role created", "role_id", role.ID, "user_id", p.UserID)
	writeJSON(w, http.StatusOK, h.images.role(r, role))
}

func (h *RoleHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	h.writeRoles(w, r, roles, err)
}

func (h *RoleHandler) ListMyRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRolesByUser(r.Context(), MustPrincipalFrom(r.Context()).UserID)
	h.writeRoles(w, r, roles, err)
}

func (h *RoleHandler) ListPublicRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListPublicRoles(r.Context())
	h.writeRoles(w, r, roles, err)
}

func (h *RoleHandler) ListChattingRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListChattingRoles(r.Context(), MustPrincipalFrom(r.Context()).UserID)
	h.writeRoles(w, r, roles, err)
}

func (h *RoleHandler) writeRoles(w http.ResponseWriter, r *http.Request, roles []*port.Role, err error) {
	if err != nil {
		writeDomainError(w, err, "failed to list roles")
		return
	}
	writeJSON(w, http.StatusOK, h.images.roles(r, roles))
}

func (h *RoleHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	role, err := h.roles.GetRole(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get role")
		return
	}
	if role == nil {
		writeError(w, http.StatusNotFound, "角色不存在")
		return
	}
	writeJSON(w, http.StatusOK, h.images.role(r, role))
}

func (h *RoleHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	existing, err := h.roles.GetRole(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get role")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "角色不存在")
		return
	}

	form, ok := h.parseRoleForm(w, r)
	if !ok {
		return
	}
	if form.patch.Name != nil && *form.patch.Name == "" {
		writeError(w, http.StatusBadRequest, "name cannot be empty")
		return
	}
	form.patch.Image = form.image

	role, err := h.roles.UpdateRole(r.Context(), id, form.patch)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			writeError(w, http.StatusNotFound, "角色不存在")
			return
		}
		writeDomainError(w, err, "failed to update role")
		return
	}
	writeJSON(w, http.StatusOK, h.images.role(r, role))
}

func (h *RoleHandler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	role, err := h.roles.DeleteRole(r.Context(), id)
	if err != nil {
		if errors.Is(err, port.ErrNotFound) {
			writeError(w, http.StatusNotFound, "角色不存在")
			return
		}
		writeDomainError(w, err, "failed to delete role")
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "角色 " + role.Name + " 已刪除"})
}
