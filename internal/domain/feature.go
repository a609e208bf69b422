package domain

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

// Статусы фич фиксированы на уровне деплоймента.
const (
	StatusUnderReview = "under-review"
	StatusPlanned     = "planned"
	StatusInProgress  = "in-progress"
	StatusComplete    = "complete"
	StatusRejected    = "rejected"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusUnderReview, StatusPlanned, StatusInProgress, StatusComplete, StatusRejected:
		return true
	}
	return false
}

type Feature struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description" json:"description"`
	Status      string             `bson:"status" json:"status"`
	CreatedBy   primitive.ObjectID `bson:"created_by" json:"created_by"`
	Likes       Likes              `bson:"likes" json:"likes"`
	Comments    Comments           `bson:"comments" json:"comments"`
	IsDeleted   bool               `bson:"is_deleted" json:"-"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

// Likes: count всегда равен len(Users); меняется только парными
// $inc/$addToSet|$pull апдейтами в repo.
type Likes struct {
	Count int                  `bson:"count" json:"count"`
	Users []primitive.ObjectID `bson:"users" json:"users"`
}

type Comments struct {
	Count int       `bson:"count" json:"count"`
	Data  []Comment `bson:"data" json:"data"`
}

// Comment живёт только внутри Feature, отдельной коллекции нет.
type Comment struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	CommentsBy primitive.ObjectID `bson:"comments_by" json:"comments_by"`
	Comment    string             `bson:"comment" json:"comment"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}
