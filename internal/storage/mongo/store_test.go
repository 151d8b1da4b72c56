package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/automataweaver/backend/internal/auth/user"
)

func TestUserDocRoundTrip(t *testing.T) {
	id := primitive.NewObjectID()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	u := user.User{
		ID:           id.Hex(),
		Username:     "ada",
		Email:        "ada@example.com",
		GoogleID:     "sub-42",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	doc, err := toUserDoc(u)
	if err != nil {
		t.Fatalf("toUserDoc: %v", err)
	}
	if doc.ID != id {
		t.Fatalf("doc.ID = %v, want %v", doc.ID, id)
	}

	back := doc.toDomain()
	if *back != u {
		t.Fatalf("round trip = %+v, want %+v", back, u)
	}
}

func TestToUserDocRejectsMalformedID(t *testing.T) {
	if _, err := toUserDoc(user.User{ID: "not-an-object-id"}); err == nil {
		t.Fatal("expected error for malformed id")
	}
}

func TestGoogleIDOrEmailFilter(t *testing.T) {
	tests := []struct {
		name        string
		googleID    string
		email       string
		wantClauses int
	}{
		{"both", "sub-1", "a@example.com", 2},
		{"google only", "sub-1", "", 1},
		{"email only", "", "a@example.com", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			filter := googleIDOrEmailFilter(tc.googleID, tc.email)
			clauses, ok := filter["$or"].([]bson.M)
			if !ok {
				t.Fatalf("filter = %v, want an $or of bson.M clauses", filter)
			}
			if len(clauses) != tc.wantClauses {
				t.Fatalf("clauses = %d, want %d", len(clauses), tc.wantClauses)
			}
		})
	}
}

func TestGoogleIDOrEmailFilterEmptyTerms(t *testing.T) {
	if filter := googleIDOrEmailFilter("", ""); filter != nil {
		t.Fatalf("filter = %v, want nil so empty terms never match", filter)
	}
}
