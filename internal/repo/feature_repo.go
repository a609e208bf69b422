package repo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/tazhibayda/features-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

var (
	ErrNotFound         = errors.New("feature not found")
	ErrDuplicateTitle   = errors.New("feature with the same title already exists")
	ErrCommentNotFound  = errors.New("comment not found")
	ErrNotCommentAuthor = errors.New("only the author can delete this comment")
)

// Заголовок проверяется как регистронезависимая подстрока: новый title —
// паттерн, существующие title — текст. Метасимволы экранируем, паттерн
// остаётся containment-проверкой.
func titlePattern(title string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(title), "$options": "i"}
}

func (s *Store) CreateFeature(ctx context.Context, f *domain.Feature) error {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.feature.insert",
		tracer.Tag("title", f.Title),
	)
	defer sp.Finish()

	err := s.colFeatures.FindOne(ctx, bson.M{"title": titlePattern(f.Title)}).Err()
	if err == nil {
		return ErrDuplicateTitle
	}
	if err != mongo.ErrNoDocuments {
		sp.SetTag("error", err)
		return err
	}

	f.Status = domain.StatusUnderReview
	f.Likes = domain.Likes{Count: 0, Users: []primitive.ObjectID{}}
	f.Comments = domain.Comments{Count: 0, Data: []domain.Comment{}}
	f.IsDeleted = false
	f.CreatedAt = time.Now().UTC()

	res, err := s.colFeatures.InsertOne(ctx, f)
	if err != nil {
		sp.SetTag("error", err)
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		f.ID = oid
	}
	return nil
}

// ListFeatures: comments.data не выгружаем вообще — списку нужен только count.
func (s *Store) ListFeatures(ctx context.Context) ([]domain.Feature, error) {
	cur, err := s.colFeatures.Find(ctx,
		bson.M{"is_deleted": false},
		options.Find().
			SetSort(bson.D{{Key: "_id", Value: -1}}).
			SetProjection(bson.M{"comments.data": 0}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.Feature
	for cur.Next(ctx) {
		var f domain.Feature
		if err := cur.Decode(&f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, cur.Err()
}

func (s *Store) FindFeatureByID(ctx context.Context, id primitive.ObjectID) (*domain.Feature, error) {
	// без фильтра по is_deleted: прямое чтение отдаёт и удалённые
	var f domain.Feature
	err := s.colFeatures.FindOne(ctx, bson.M{"_id": id}).Decode(&f)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &f, err
}

func (s *Store) featureExists(ctx context.Context, id primitive.ObjectID) (bool, error) {
	err := s.colFeatures.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	return err == nil, err
}

// Like атомарно: фильтр требует отсутствия лайка, апдейт добавляет юзера и
// инкрементит счётчик одной командой, так что count не может разъехаться с
// likes.users. changed=false — лайк уже стоял.
func (s *Store) Like(ctx context.Context, id, userID primitive.ObjectID) (changed bool, err error) {
	res, err := s.colFeatures.UpdateOne(ctx,
		bson.M{"_id": id, "likes.users": bson.M{"$ne": userID}},
		bson.M{
			"$addToSet": bson.M{"likes.users": userID},
			"$inc":      bson.M{"likes.count": 1},
		},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	ok, err := s.featureExists(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotFound
	}
	return false, nil
}

func (s *Store) Unlike(ctx context.Context, id, userID primitive.ObjectID) (changed bool, err error) {
	res, err := s.colFeatures.UpdateOne(ctx,
		bson.M{"_id": id, "likes.users": userID},
		bson.M{
			"$pull": bson.M{"likes.users": userID},
			"$inc":  bson.M{"likes.count": -1},
		},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	ok, err := s.featureExists(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotFound
	}
	return false, nil
}

// ToggleLike: две условные попытки, каждая атомарна сама по себе.
func (s *Store) ToggleLike(ctx context.Context, id, userID primitive.ObjectID) (liked bool, err error) {
	changed, err := s.Like(ctx, id, userID)
	if err != nil {
		return false, err
	}
	if changed {
		return true, nil
	}
	if _, err := s.Unlike(ctx, id, userID); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) SetStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	res, err := s.colFeatures.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AddComment(ctx context.Context, id, userID primitive.ObjectID, text string) (*domain.Comment, error) {
	c := domain.Comment{
		ID:         primitive.NewObjectID(),
		CommentsBy: userID,
		Comment:    text,
		CreatedAt:  time.Now().UTC(),
	}
	res, err := s.colFeatures.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$push": bson.M{"comments.data": c},
			"$inc":  bson.M{"comments.count": 1},
		},
	)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, ErrNotFound
	}
	return &c, nil
}

// DeleteComment: pull + декремент одной командой, фильтр заодно проверяет
// авторство. Диагноз (нет фичи / нет коммента / чужой коммент) ставим
// отдельным чтением только когда апдейт никого не зацепил.
func (s *Store) DeleteComment(ctx context.Context, id, commentID, userID primitive.ObjectID) error {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.feature.comment_delete",
		tracer.Tag("comment_id", commentID.Hex()),
	)
	defer sp.Finish()

	res, err := s.colFeatures.UpdateOne(ctx,
		bson.M{
			"_id": id,
			"comments.data": bson.M{"$elemMatch": bson.M{
				"_id":         commentID,
				"comments_by": userID,
			}},
		},
		bson.M{
			"$pull": bson.M{"comments.data": bson.M{"_id": commentID}},
			"$inc":  bson.M{"comments.count": -1},
		},
	)
	if err != nil {
		sp.SetTag("error", err)
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	f, err := s.FindFeatureByID(ctx, id)
	if err != nil {
		return err
	}
	if f == nil {
		return ErrNotFound
	}
	for _, c := range f.Comments.Data {
		if c.ID == commentID {
			return ErrNotCommentAuthor
		}
	}
	return ErrCommentNotFound
}

// SearchFeatures ищет подстроку в title или description; тела комментариев,
// как и в списке, не выгружаются.
func (s *Store) SearchFeatures(ctx context.Context, term string) ([]domain.Feature, error) {
	p := titlePattern(term)
	cur, err := s.colFeatures.Find(ctx,
		bson.M{
			"is_deleted": false,
			"$or":        bson.A{bson.M{"title": p}, bson.M{"description": p}},
		},
		options.Find().
			SetSort(bson.D{{Key: "_id", Value: -1}}).
			SetProjection(bson.M{"comments.data": 0}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.Feature
	for cur.Next(ctx) {
		var f domain.Feature
		if err := cur.Decode(&f); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, cur.Err()
}
