package domain

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
	"time"
)

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash,omitempty" json:"-"`
	Provider     string             `bson:"provider" json:"provider"` // "local" | "google"
	PhotoURL     string             `bson:"photo_url,omitempty" json:"photoURL,omitempty"`
	IsDeleted    bool               `bson:"is_deleted" json:"-"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

// ActorRef — то, что отдаём наружу вместо полного User.
type ActorRef struct {
	ID       primitive.ObjectID `json:"id"`
	Name     string             `json:"name"`
	Email    string             `json:"email"`
	PhotoURL string             `json:"photoURL,omitempty"`
}

func (u *User) Ref() ActorRef {
	return ActorRef{ID: u.ID, Name: u.Name, Email: u.Email, PhotoURL: u.PhotoURL}
}
