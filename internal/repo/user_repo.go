package repo

import (
	"context"
	"time"

	"github.com/tazhibayda/features-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	u.CreatedAt = time.Now().UTC()
	res, err := s.colUsers.InsertOne(ctx, u)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		u.ID = oid
	}
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := s.colUsers.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &u, err
}

func (s *Store) FindUserByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	var u domain.User
	err := s.colUsers.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &u, err
}

// FindUsersByIDs — батчевый справочник для проекций: один запрос на всех
// авторов/лайкнувших.
func (s *Store) FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]domain.User, error) {
	out := make(map[primitive.ObjectID]domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.colUsers.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var u domain.User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, cur.Err()
}

func (s *Store) UpdateUserProfile(ctx context.Context, id primitive.ObjectID, name, email string) error {
	set := bson.M{}
	if name != "" {
		set["name"] = name
	}
	if email != "" {
		set["email"] = email
	}
	if len(set) == 0 {
		return nil
	}
	_, err := s.colUsers.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return err
}

func (s *Store) UpdateUserPassword(ctx context.Context, id primitive.ObjectID, hash string) error {
	_, err := s.colUsers.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"password_hash": hash}})
	return err
}

// SoftDeleteUser — административный путь; по HTTP не торчит.
func (s *Store) SoftDeleteUser(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.colUsers.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_deleted": true}})
	return err
}
