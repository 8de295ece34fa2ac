package wizard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sankofa-mutual/sankofa/internal/observability"
	"github.com/sankofa-mutual/sankofa/internal/platform/httpx"
	"github.com/sankofa-mutual/sankofa/internal/settlement"
	"github.com/sankofa-mutual/sankofa/internal/shared"
)

// Handler exposes the two settlement wizards over a JSON API. Notification
// (toasts, warnings) is the consumer's concern; the handler only reports
// structured outcomes.
// Notifier dispatches post-batch notifications, typically a receipt email
// through the job queue. Implementations must not block the request.
type Notifier interface {
	BatchSettled(ctx context.Context, st *State, result settlement.BatchResult, paidAt time.Time)
}

type Handler struct {
	logger   *slog.Logger
	store    *Store
	engines  map[OwnerKind]*Engine
	validate *validator.Validate
	metrics  *observability.Metrics
	audit    *shared.AuditLogger
	notifier Notifier
}

// NewHandler builds a Handler over the given wizard engines. The audit logger
// may be nil in tests.
func NewHandler(logger *slog.Logger, store *Store, metrics *observability.Metrics, audit *shared.AuditLogger, engines ...*Engine) *Handler {
	byKind := make(map[OwnerKind]*Engine, len(engines))
	for _, e := range engines {
		byKind[e.Kind()] = e
	}
	return &Handler{
		logger:   logger,
		store:    store,
		engines:  byKind,
		validate: validator.New(),
		metrics:  metrics,
		audit:    audit,
	}
}

// SetNotifier installs the post-batch notifier.
func (h *Handler) SetNotifier(n Notifier) {
	h.notifier = n
}

// MountRoutes registers wizard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{kind}", func(r chi.Router) {
		r.Use(h.requireKind)
		r.Get("/groups", h.listGroups)
		r.Get("/groups/{groupID}/owners", h.listOwners)
		r.Post("/wizards", h.start)
		r.Route("/wizards/{wizardID}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Delete("/", h.cancel)
			r.Post("/group", h.chooseGroup)
			r.Post("/owner", h.chooseOwner)
			r.Post("/selection/toggle", h.toggleDue)
			r.Post("/selection/amount", h.setAmount)
			r.Post("/selection/select-all", h.selectAll)
			r.Post("/selection/clear", h.clearAll)
			r.Post("/distribute", h.distribute)
			r.Post("/selection/confirm", h.confirmSelection)
			r.Post("/submit", h.submit)
			r.Post("/back", h.back)
			r.Post("/jump", h.jump)
			r.Post("/restart", h.restart)
		})
	})
}

func (h *Handler) requireKind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind := OwnerKind(chi.URLParam(r, "kind"))
		if _, ok := h.engines[kind]; !ok {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown settlement kind")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) engine(r *http.Request) *Engine {
	return h.engines[OwnerKind(chi.URLParam(r, "kind"))]
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*State, bool) {
	kind := OwnerKind(chi.URLParam(r, "kind"))
	st, err := h.store.Load(r.Context(), kind, chi.URLParam(r, "wizardID"))
	if err != nil {
		h.respondError(w, err)
		return nil, false
	}
	return st, true
}

// save persists the mutated state and renders it.
func (h *Handler) save(w http.ResponseWriter, r *http.Request, st *State) {
	if err := h.store.Save(r.Context(), st); err != nil {
		h.logger.Error("save wizard state", slog.String("wizard_id", st.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, newStateView(st))
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.engine(r).provider.ListGroups(r.Context())
	if err != nil {
		h.logger.Error("list groups", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) listOwners(w http.ResponseWriter, r *http.Request) {
	groupID, ok := httpx.ParamInt64(w, r, "groupID")
	if !ok {
		return
	}
	owners, err := h.engine(r).provider.ListOwners(r.Context(), groupID)
	if err != nil {
		h.logger.Error("list owners", slog.Int64("group_id", groupID), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"owners": owners})
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	st := h.engine(r).Start()
	if err := h.store.Save(r.Context(), st); err != nil {
		h.logger.Error("save wizard state", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusCreated, newStateView(st))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, newStateView(st))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	kind := OwnerKind(chi.URLParam(r, "kind"))
	if err := h.store.Delete(r.Context(), kind, chi.URLParam(r, "wizardID")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type chooseGroupRequest struct {
	GroupID int64 `json:"group_id" validate:"required,gt=0"`
}

func (h *Handler) chooseGroup(w http.ResponseWriter, r *http.Request) {
	var req chooseGroupRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.engine(r).ChooseGroup(r.Context(), st, req.GroupID); err != nil {
		h.respondError(w, err)
		return
	}
	h.save(w, r, st)
}

type chooseOwnerRequest struct {
	OwnerID int64 `json:"owner_id" validate:"required,gt=0"`
}

func (h *Handler) chooseOwner(w http.ResponseWriter, r *http.Request) {
	var req chooseOwnerRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.engine(r).ChooseOwner(r.Context(), st, req.OwnerID); err != nil {
		h.respondError(w, err)
		return
	}
	h.save(w, r, st)
}

type toggleRequest struct {
	DueID int64 `json:"due_id" validate:"required,gt=0"`
}

func (h *Handler) toggleDue(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.editSelection(w, r, func(sel *settlement.Selection) {
		sel.Toggle(req.DueID)
	})
}

type setAmountRequest struct {
	DueID  int64   `json:"due_id" validate:"required,gt=0"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

func (h *Handler) setAmount(w http.ResponseWriter, r *http.Request) {
	var req setAmountRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.editSelection(w, r, func(sel *settlement.Selection) {
		sel.SetAmount(req.DueID, req.Amount)
	})
}

func (h *Handler) selectAll(w http.ResponseWriter, r *http.Request) {
	h.editSelection(w, r, func(sel *settlement.Selection) {
		sel.SelectAll()
	})
}

func (h *Handler) clearAll(w http.ResponseWriter, r *http.Request) {
	h.editSelection(w, r, func(sel *settlement.Selection) {
		sel.ClearAll()
	})
}

type distributeRequest struct {
	Target float64 `json:"target"`
}

func (h *Handler) distribute(w http.ResponseWriter, r *http.Request) {
	var req distributeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.editSelection(w, r, func(sel *settlement.Selection) {
		sel.Distribute(req.Target)
	})
}

func (h *Handler) editSelection(w http.ResponseWriter, r *http.Request, edit func(*settlement.Selection)) {
	st, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.engine(r).EditSelection(st, edit); err != nil {
		h.respondError(w, err)
		return
	}
	h.save(w, r, st)
}

func (h *Handler) confirmSelection(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.engine(r).ConfirmSelection(st); err != nil {
		h.respondError(w, err)
		return
	}
	h.save(w, r, st)
}

type submitRequest struct {
	Date      string `json:"date" validate:"required"`
	Mode      string `json:"mode" validate:"required"`
	Reference string `json:"reference"`
	Comment   string `json:"comment"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}

	st, ok := h.load(w, r)
	if !ok {
		return
	}

	result, err := h.engine(r).Submit(r.Context(), st, settlement.PaymentDetails{
		Date:      date,
		Mode:      settlement.PaymentMode(req.Mode),
		Reference: req.Reference,
		Comment:   req.Comment,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.ObserveBatch(string(st.Kind), string(result.Outcome), len(result.Records), len(result.Failures))
	}
	if h.audit != nil {
		if err := h.audit.Record(r.Context(), shared.AuditLog{
			Action:   "settlement.batch",
			Entity:   string(st.Kind),
			EntityID: st.ID,
			Meta: map[string]any{
				"owner_id":  st.Owner.ID,
				"outcome":   result.Outcome,
				"succeeded": len(result.Records),
				"failed":    len(result.Failures),
				"total":     result.TotalSettled(),
			},
		}); err != nil {
			h.logger.Error("audit settlement batch",
				slog.String("wizard_id", st.ID), slog.Any("error", err))
		}
	}
	if h.notifier != nil && result.Settled() {
		h.notifier.BatchSettled(r.Context(), st, result, date)
	}

	if err := h.store.Save(r.Context(), st); err != nil {
		// Lines are already persisted; report the result but log loudly.
		h.logger.Error("save wizard state after batch",
			slog.String("wizard_id", st.ID), slog.Any("error", err))
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"outcome":  result.Outcome,
		"records":  result.Records,
		"failures": result.Failures,
		"state":    newStateView(st),
	})
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.engine(r).Back(st); err != nil {
		h.respondError(w, err)
		return
	}
	h.save(w, r, st)
}

type jumpRequest struct {
	Step string `json:"step" validate:"required"`
}

func (h *Handler) jump(w http.ResponseWriter, r *http.Request) {
	var req jumpRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.engine(r).JumpTo(st, Step(req.Step)); err != nil {
		h.respondError(w, err)
		return
	}
	h.save(w, r, st)
}

func (h *Handler) restart(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r)
	if !ok {
		return
	}
	h.engine(r).Restart(st)
	h.save(w, r, st)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", fieldErrs[0].Error())
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "")
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrWizardNotFound),
		errors.Is(err, ErrGroupNotFound),
		errors.Is(err, ErrOwnerNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrStepNotAllowed), errors.Is(err, ErrNoHistory), errors.Is(err, ErrFinished):
		httpx.Problem(w, http.StatusConflict, "Step Not Allowed", err.Error())
	case errors.Is(err, ErrOwnerMismatch):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Owner Mismatch", err.Error())
	case errors.Is(err, settlement.ErrEmptySelection),
		errors.Is(err, settlement.ErrNonPositiveTotal),
		errors.Is(err, settlement.ErrExceedsRemaining),
		errors.Is(err, settlement.ErrDateMissing),
		errors.Is(err, settlement.ErrDateInFuture),
		errors.Is(err, settlement.ErrReferenceRequired),
		errors.Is(err, settlement.ErrInvalidMode):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, settlement.ErrUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "settlement backend unreachable")
	default:
		h.logger.Error("wizard request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
