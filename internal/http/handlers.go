package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tazhibayda/features-service/internal/domain"
	"github.com/tazhibayda/features-service/internal/log"
	"github.com/tazhibayda/features-service/internal/metrics"
	"github.com/tazhibayda/features-service/internal/queue"
	"github.com/tazhibayda/features-service/internal/repo"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type Handler struct {
	Store           *repo.Store
	Redis           *repo.Redis
	Events          queue.Publisher
	JWTSecret       string
	AccessTTL       time.Duration
	RateLimitPerMin int
}

func NewHandler(store *repo.Store, rds *repo.Redis, pub queue.Publisher, jwtSecret string, accessTTLMin, rlPerMin int) *Handler {
	return &Handler{
		Store:           store,
		Redis:           rds,
		Events:          pub,
		JWTSecret:       jwtSecret,
		AccessTTL:       time.Duration(accessTTLMin) * time.Minute,
		RateLimitPerMin: rlPerMin,
	}
}

func (h *Handler) actorID(c *gin.Context) (primitive.ObjectID, bool) {
	au, _ := c.Get(authUserKey)
	u, ok := au.(AuthUser)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no uid"})
		return primitive.NilObjectID, false
	}
	oid, err := primitive.ObjectIDFromHex(u.UID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid uid"})
		return primitive.NilObjectID, false
	}
	return oid, true
}

func featureID(c *gin.Context) (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		// кривой id ни во что не резолвится
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "feature not found"})
		return primitive.NilObjectID, false
	}
	return oid, true
}

// ---- проекции ----

type likesView struct {
	Count int               `json:"count"`
	Users []domain.ActorRef `json:"users"`
}

type commentView struct {
	ID         primitive.ObjectID `json:"id"`
	CommentsBy domain.ActorRef    `json:"commentsBy"`
	Comment    string             `json:"comment"`
	CreatedAt  time.Time          `json:"createdAt"`
}

type commentsView struct {
	Count int           `json:"count"`
	Data  []commentView `json:"data"`
}

type featureSummary struct {
	ID            primitive.ObjectID `json:"id"`
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	CreatedBy     domain.ActorRef    `json:"createdBy"`
	CreatedAt     time.Time          `json:"createdAt"`
	Likes         likesView          `json:"likes"`
	Status        string             `json:"status"`
	TotalComments int                `json:"totalComments"`
}

type featureDetail struct {
	ID          primitive.ObjectID `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Status      string             `json:"status"`
	CreatedBy   domain.ActorRef    `json:"createdBy"`
	Likes       likesView          `json:"likes"`
	Comments    *commentsView      `json:"comments,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

func actorIDs(fs []domain.Feature, withComments bool) []primitive.ObjectID {
	seen := map[primitive.ObjectID]struct{}{}
	var ids []primitive.ObjectID
	add := func(id primitive.ObjectID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for i := range fs {
		add(fs[i].CreatedBy)
		for _, u := range fs[i].Likes.Users {
			add(u)
		}
		if withComments {
			for _, cm := range fs[i].Comments.Data {
				add(cm.CommentsBy)
			}
		}
	}
	return ids
}

func resolveLikes(l domain.Likes, users map[primitive.ObjectID]domain.User) likesView {
	v := likesView{Count: l.Count, Users: []domain.ActorRef{}}
	for _, id := range l.Users {
		if u, ok := users[id]; ok {
			v.Users = append(v.Users, u.Ref())
		}
	}
	return v
}

func projectDetail(f *domain.Feature, users map[primitive.ObjectID]domain.User, withComments bool) featureDetail {
	d := featureDetail{
		ID:          f.ID,
		Title:       f.Title,
		Description: f.Description,
		Status:      f.Status,
		Likes:       resolveLikes(f.Likes, users),
		CreatedAt:   f.CreatedAt,
	}
	if u, ok := users[f.CreatedBy]; ok {
		d.CreatedBy = u.Ref()
	}
	if withComments {
		cv := commentsView{Count: f.Comments.Count, Data: []commentView{}}
		for _, cm := range f.Comments.Data {
			item := commentView{ID: cm.ID, Comment: cm.Comment, CreatedAt: cm.CreatedAt}
			if u, ok := users[cm.CommentsBy]; ok {
				item.CommentsBy = u.Ref()
			}
			cv.Data = append(cv.Data, item)
		}
		d.Comments = &cv
	}
	return d
}

// detail перечитывает агрегат и резолвит всех акторов — общий хвост
// мутирующих ручек.
func (h *Handler) detail(ctx context.Context, id primitive.ObjectID) (*featureDetail, error) {
	f, err := h.Store.FindFeatureByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, repo.ErrNotFound
	}
	users, err := h.Store.FindUsersByIDs(ctx, actorIDs([]domain.Feature{*f}, true))
	if err != nil {
		return nil, err
	}
	d := projectDetail(f, users, true)
	return &d, nil
}

// publish — сбой брокера запрос не валит, только пишется в лог.
func (h *Handler) publish(c *gin.Context, key string, event any) {
	err := h.Events.Publish(c.Request.Context(), "features.events", key, event,
		c.GetString("X-Request-ID"))
	if err != nil {
		log.WithDD(c.Request.Context(), log.L).Warn("event publish failed",
			zap.String("key", key), zap.Error(err))
	}
}

func (h *Handler) featureErr(c *gin.Context, err error) {
	switch err {
	case repo.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "feature not found"})
	case repo.ErrCommentNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
	case repo.ErrNotCommentAuthor:
		c.JSON(http.StatusForbidden, gin.H{"error": "you cannot delete this comment"})
	case repo.ErrDuplicateTitle:
		c.JSON(http.StatusBadRequest, gin.H{"error": "feature with the same title already exists"})
	default:
		log.WithDD(c.Request.Context(), log.L).Error("store call failed",
			zap.String("route", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
	}
}

// ---- ручки ----

type createFeatureReq struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateFeature godoc
// @Summary Create feature request
// @Tags features
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body createFeatureReq true "title, description"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/features [post]
func (h *Handler) CreateFeature(c *gin.Context) {
	uid, ok := h.actorID(c)
	if !ok {
		return
	}
	var in createFeatureReq
	if err := c.ShouldBindJSON(&in); err != nil || strings.TrimSpace(in.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	f := &domain.Feature{
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		CreatedBy:   uid,
	}
	if err := h.Store.CreateFeature(c.Request.Context(), f); err != nil {
		h.featureErr(c, err)
		return
	}
	metrics.EngagementTotal.WithLabelValues("create").Inc()

	h.publish(c, "feature.created",
		queue.FeatureCreated{FeatureID: f.ID.Hex(), Title: f.Title, CreatedBy: uid.Hex()})

	d, err := h.detail(c.Request.Context(), f.ID)
	if err != nil {
		h.featureErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Feature created successfully", "feature": d})
}

// ListFeatures godoc
// @Summary List feature requests
// @Tags features
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/features [get]
func (h *Handler) ListFeatures(c *gin.Context) {
	fs, err := h.Store.ListFeatures(c.Request.Context())
	if err != nil {
		h.featureErr(c, err)
		return
	}
	users, err := h.Store.FindUsersByIDs(c.Request.Context(), actorIDs(fs, false))
	if err != nil {
		h.featureErr(c, err)
		return
	}

	items := []featureSummary{}
	for i := range fs {
		creator, ok := users[fs[i].CreatedBy]
		if !ok || creator.IsDeleted {
			// фичи удалённых авторов в список не попадают
			continue
		}
		items = append(items, featureSummary{
			ID:            fs[i].ID,
			Title:         fs[i].Title,
			Description:   fs[i].Description,
			CreatedBy:     creator.Ref(),
			CreatedAt:     fs[i].CreatedAt,
			Likes:         resolveLikes(fs[i].Likes, users),
			Status:        fs[i].Status,
			TotalComments: fs[i].Comments.Count,
		})
	}
	c.JSON(http.StatusOK, gin.H{"message": "All features retrieved successfully", "features": items})
}

// GetFeature godoc
// @Summary Get feature request by id
// @Tags features
// @Security BearerAuth
// @Param id path string true "feature id"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /api/v1/features/{id} [get]
func (h *Handler) GetFeature(c *gin.Context) {
	id, ok := featureID(c)
	if !ok {
		return
	}
	d, err := h.detail(c.Request.Context(), id)
	if err != nil {
		h.featureErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Feature fetched successfully", "feature": d})
}

// ToggleLike godoc
// @Summary Toggle like on feature request
// @Tags features
// @Security BearerAuth
// @Param id path string true "feature id"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /api/v1/features/{id}/like [patch]
func (h *Handler) ToggleLike(c *gin.Context) {
	uid, ok := h.actorID(c)
	if !ok {
		return
	}
	id, ok := featureID(c)
	if !ok {
		return
	}
	liked, err := h.Store.ToggleLike(c.Request.Context(), id, uid)
	if err != nil {
		h.featureErr(c, err)
		return
	}
	h.afterLike(c, id, uid, liked)
}

// LikeFeature godoc
// @Summary Like feature request (no-op if already liked)
// @Tags features
// @Security BearerAuth
// @Param id path string true "feature id"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /api/v1/features/{id}/like [put]
func (h *Handler) LikeFeature(c *gin.Context) {
	uid, ok := h.actorID(c)
	if !ok {
		return
	}
	id, ok := featureID(c)
	if !ok {
		return
	}
	changed, err := h.Store.Like(c.Request.Context(), id, uid)
	if err != nil {
		h.featureErr(c, err)
		return
	}
	if changed {
		h.afterLike(c, id, uid, true)
		return
	}
	h.respondDetail(c, id, "Feature like/unlike successful")
}

// UnlikeFeature godoc
// @Summary Unlike feature request (no-op if not liked)
// @Tags features
// @Security BearerAuth
// @Param id path string true "feature id"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /api/v1/features/{id}/like [delete]
func (h *Handler) UnlikeFeature(c *gin.Context) {
	uid, ok := h.actorID(c)
	if !ok {
		return
	}
	id, ok := featureID(c)
	if !ok {
		return
	}
	changed, err := h.Store.Unlike(c.Request.Context(), id, uid)
	if err != nil {
		h.featureErr(c, err)
		return
	}
	if changed {
		h.afterLike(c, id, uid, false)
		return
	}
	h.respondDetail(c, id, "Feature like/unlike successful")
}

func (h *Handler) afterLike(c *gin.Context, id, uid primitive.ObjectID, liked bool) {
	op := "unlike"
	if liked {
		op = "like"
	}
	metrics.EngagementTotal.WithLabelValues(op).Inc()
	h.publish(c, "feature.liked",
		queue.FeatureLiked{FeatureID: id.Hex(), UserID: uid.Hex(), Liked: liked})
	h.respondDetail(c, id, "Feature like/unlike successful")
}

func (h *Handler) respondDetail(c *gin.Context, id primitive.ObjectID, msg string) {
	d, err := h.detail(c.Request.Context(), id)
	if err != nil {
		h.featureErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "feature": d})
}

type updateStatusReq struct {
	Status string `json:"status"`
}

// UpdateStatus godoc
// @Summary Update feature request status
// @Tags features
// @Security BearerAuth
// @Param id path string true "feature id"
// @Param payload body updateStatusReq true "status"
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/features/{id}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	if _, ok := h.actorID(c); !ok {
		return
	}
	id, ok := featureID(c)
	if !ok {
		return
	}
	var in updateStatusReq
	if err := c.ShouldBindJSON(&in); err != nil || !domain.ValidStatus(in.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if err := h.Store.SetStatus(c.Request.Context(), id, in.Status); err != nil {
		h.featureErr(c, err)
		return
	}
	metrics.EngagementTotal.WithLabelValues("status").Inc()
	h.respondDetail(c, id, "Feature status updated successfully")
}

type addCommentReq struct {
	Comment string `json:"comment"`
}

// AddComment godoc
// @Summary Comment on feature request
// @Tags features
// @Security BearerAuth
// @Param id path string true "feature id"
// @Param payload body addCommentReq true "comment"
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/features/{id}/comments [post]
func (h *Handler) AddComment(c *gin.Context) {
	uid, ok := h.actorID(c)
	if !ok {
		return
	}
	id, ok := featureID(c)
	if !ok {
		return
	}
	var in addCommentReq
	if err := c.ShouldBindJSON(&in); err != nil || strings.TrimSpace(in.Comment) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment is required"})
		return
	}
	cm, err := h.Store.AddComment(c.Request.Context(), id, uid, in.Comment)
	if err != nil {
		h.featureErr(c, err)
		return
	}
	metrics.EngagementTotal.WithLabelValues("comment_add").Inc()
	h.publish(c, "comment.added",
		queue.CommentAdded{FeatureID: id.Hex(), CommentID: cm.ID.Hex(), UserID: uid.Hex()})
	h.respondDetail(c, id, "Comment added successfully")
}

// DeleteComment godoc
// @Summary Delete own comment
// @Tags features
// @Security BearerAuth
// @Param id path string true "feature id"
// @Param commentId path string true "comment id"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/features/{id}/comments/{commentId} [delete]
func (h *Handler) DeleteComment(c *gin.Context) {
	uid, ok := h.actorID(c)
	if !ok {
		return
	}
	id, ok := featureID(c)
	if !ok {
		return
	}
	cid, err := primitive.ObjectIDFromHex(c.Param("commentId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
		return
	}
	if err := h.Store.DeleteComment(c.Request.Context(), id, cid, uid); err != nil {
		h.featureErr(c, err)
		return
	}
	metrics.EngagementTotal.WithLabelValues("comment_delete").Inc()
	h.respondDetail(c, id, "Comment deleted successfully")
}

// SearchFeatures godoc
// @Summary Search feature requests
// @Tags features
// @Security BearerAuth
// @Param q query string true "search term"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/features/search [get]
func (h *Handler) SearchFeatures(c *gin.Context) {
	term := strings.TrimSpace(c.Query("q"))
	fs, err := h.Store.SearchFeatures(c.Request.Context(), term)
	if err != nil {
		h.featureErr(c, err)
		return
	}
	users, err := h.Store.FindUsersByIDs(c.Request.Context(), actorIDs(fs, false))
	if err != nil {
		h.featureErr(c, err)
		return
	}

	items := []featureDetail{}
	for i := range fs {
		creator, ok := users[fs[i].CreatedBy]
		if !ok || creator.IsDeleted {
			continue
		}
		items = append(items, projectDetail(&fs[i], users, false))
	}
	c.JSON(http.StatusOK, gin.H{"message": "Features searched successfully", "features": items})
}

// Healthz godoc
// @Summary Health check
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
