package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/ikolcov/pinboard/internal/board"
	"github.com/ikolcov/pinboard/internal/models"
	"github.com/ikolcov/pinboard/internal/payment"
	"github.com/ikolcov/pinboard/internal/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	maxBodyBytes    = 16 << 10
)

type AppConfig struct {
	Port uint16
}

type App struct {
	config AppConfig
	board  *board.Board
	feed   http.Handler
	logger *slog.Logger
	server *http.Server
}

// New wires the HTTP API over b. feed may be nil, in which case live updates
// are not served.
func New(config AppConfig, b *board.Board, feed http.Handler, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		config: config,
		board:  b,
		feed:   feed,
		logger: logger.With("component", "api"),
	}
	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%v", config.Port),
		Handler:           a.initRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

type createPostRequest struct {
	Key     string          `json:"key"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Link    string          `json:"link"`
	Author  string          `json:"author"`
	Amount  decimal.Decimal `json:"amount"`
}

type pricingResponse struct {
	MinAmount          decimal.Decimal `json:"minAmount"`
	PinDurationSeconds int64           `json:"pinDurationSeconds"`
}

func (a *App) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		utils.BadRequest(w, err.Error())
	case errors.Is(err, models.ErrBadRequest):
		utils.BadRequest(w, err.Error())
	case errors.Is(err, models.ErrNotFound):
		utils.NotFound(w, err.Error())
	case errors.Is(err, payment.ErrCancelled), errors.Is(err, payment.ErrInsufficientBalance):
		utils.PaymentRequired(w, err.Error())
	case errors.Is(err, payment.ErrBusy):
		utils.Conflict(w, err.Error())
	case errors.Is(err, payment.ErrTimeout):
		utils.GatewayTimeout(w, err.Error())
	case errors.Is(err, payment.ErrFailed), errors.Is(err, board.ErrNoGateway):
		utils.BadGateway(w, err.Error())
	default:
		a.logger.Error("request failed", "err", err)
		utils.InternalError(w, "internal error")
	}
}

func (a *App) addPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		utils.BadRequest(w, err.Error())
		return
	}
	if req.Key == "" {
		req.Key = r.Header.Get("Idempotency-Key")
	}

	post, err := a.board.Submit(r.Context(), board.Submission{
		Key:     req.Key,
		Title:   req.Title,
		Content: req.Content,
		Link:    req.Link,
		Author:  req.Author,
		Amount:  req.Amount,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, post)
}

func getPostId(r *http.Request) (models.PostID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "postId"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid post id", models.ErrBadRequest)
	}
	return models.PostID(id), nil
}

func (a *App) getPost(w http.ResponseWriter, r *http.Request) {
	postId, err := getPostId(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	post, err := a.board.Get(r.Context(), postId)
	if err != nil {
		a.writeError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, post)
}

func (a *App) deletePost(w http.ResponseWriter, r *http.Request) {
	postId, err := getPostId(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.board.Delete(r.Context(), postId); err != nil {
		a.writeError(w, err)
		return
	}
	utils.NoContent(w)
}

func getParam(r *http.Request, key string, defaultValue int) (int, error) {
	param := r.URL.Query().Get(key)
	if param == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(param)
}

func getPaging(r *http.Request) (int, int, error) {
	page, err := getParam(r, "page", 1)
	if err != nil || page < 1 {
		return 0, 0, errors.New("invalid page")
	}
	size, err := getParam(r, "size", defaultPageSize)
	if err != nil || size < 1 || size > maxPageSize {
		return 0, 0, errors.New("invalid size")
	}
	return page, size, nil
}

func (a *App) listPosts(w http.ResponseWriter, r *http.Request) {
	page, size, err := getPaging(r)
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	ranked, err := a.board.Ranked(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}

	from := (page - 1) * size
	if from > len(ranked) {
		utils.BadRequest(w, models.ErrBadRequest.Error())
		return
	}
	to := from + size
	if to > len(ranked) {
		to = len(ranked)
	}

	rankedPage := models.RankedPage{Posts: ranked[from:to]}
	if to < len(ranked) {
		rankedPage.NextPage = fmt.Sprint(page + 1)
	}
	utils.RespondJSON(w, http.StatusOK, rankedPage)
}

func (a *App) getAuthorPosts(w http.ResponseWriter, r *http.Request) {
	author := strings.TrimSpace(chi.URLParam(r, "author"))
	page, size, err := getPaging(r)
	if err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	postsPage, err := a.board.AuthorPosts(r.Context(), author, page, size)
	if err != nil {
		a.writeError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, postsPage)
}

func (a *App) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.board.Stats(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, stats)
}

func (a *App) getPricing(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, pricingResponse{
		MinAmount:          a.board.MinAmount(),
		PinDurationSeconds: int64(a.board.PinDuration() / time.Second),
	})
}

func (a *App) initRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1/posts", func(r chi.Router) {
		r.Post("/", a.addPost)
		r.Get("/", a.listPosts)
		r.Get("/{postId}", a.getPost)
		r.Delete("/{postId}", a.deletePost)
	})
	r.Get("/api/v1/authors/{author}/posts", a.getAuthorPosts)
	r.Get("/api/v1/stats", a.getStats)
	r.Get("/api/v1/pricing", a.getPricing)
	if a.feed != nil {
		r.Handle("/api/v1/feed", a.feed)
	}
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start serves until Shutdown is called.
func (a *App) Start() error {
	a.logger.Info("api listening", "addr", a.server.Addr)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
