package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/movieservice/auth-service/internal/apperr"
	"github.com/movieservice/auth-service/internal/models"
	"github.com/movieservice/auth-service/pkg/logger"
)

// MongoRepository implements Repository over three collections: users,
// oauth_accounts and counters (numeric ids for oauth_accounts).
type MongoRepository struct {
	db       *mongo.Database
	users    *mongo.Collection
	accounts *mongo.Collection
	counters *mongo.Collection
	now      func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		db:       db,
		users:    db.Collection("users"),
		accounts: db.Collection("oauth_accounts"),
		counters: db.Collection("counters"),
		now:      time.Now,
	}
}

// EnsureIndexes creates the unique indexes the SQL schema declares as
// constraints. The email index is sparse so users without email coexist.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	})
	if err != nil {
		return fmt.Errorf("users: create user indexes: %w", err)
	}
	_, err = r.accounts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "providerUserId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("users: create oauth account indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.users.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.findUser(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}
	return r.findUser(ctx, bson.M{"email": email})
}

func (r *MongoRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findUser(ctx, bson.M{"username": username})
}

func duplicateOr(err error, what string) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("users: %s: %w", what, apperr.ErrDuplicateIdentity)
	}
	return fmt.Errorf("users: %s: %w", what, err)
}

func (r *MongoRepository) Create(ctx context.Context, u *models.User) error {
	prepareUser(u, r.now().UTC())
	if _, err := r.users.InsertOne(ctx, u); err != nil {
		return duplicateOr(err, "insert user")
	}
	return nil
}

func (r *MongoRepository) Update(ctx context.Context, u *models.User) error {
	u.Email = NormalizeEmail(u.Email)
	u.UpdatedAt = r.now().UTC()
	res, err := r.users.ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		return duplicateOr(err, "update user")
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("users: update %s: %w", u.ID, apperr.ErrNotFound)
	}
	return nil
}

func (r *MongoRepository) nextAccountID(ctx context.Context) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "oauth_accounts"},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("users: next oauth account id: %w", err)
	}
	return doc.Seq, nil
}

func (r *MongoRepository) insertAccount(ctx context.Context, acc *models.OAuthAccount) error {
	id, err := r.nextAccountID(ctx)
	if err != nil {
		return err
	}
	acc.ID = id
	if _, err := r.accounts.InsertOne(ctx, acc); err != nil {
		return duplicateOr(err, "insert oauth account")
	}
	return nil
}

// CreateWithOAuthAccount inserts the user, then the link. Standalone
// servers have no multi-document transactions, so a failed link insert is
// compensated by deleting the user again.
func (r *MongoRepository) CreateWithOAuthAccount(ctx context.Context, u *models.User, acc *models.OAuthAccount) error {
	now := r.now().UTC()
	prepareUser(u, now)
	prepareAccount(acc, now)
	acc.UserID = u.ID

	if _, err := r.users.InsertOne(ctx, u); err != nil {
		return duplicateOr(err, "insert user")
	}
	if err := r.insertAccount(ctx, acc); err != nil {
		if _, delErr := r.users.DeleteOne(context.WithoutCancel(ctx), bson.M{"_id": u.ID}); delErr != nil {
			logger.With("user_id", u.ID).Errorf("compensating user delete failed: %v", delErr)
		}
		return err
	}
	return nil
}

func (r *MongoRepository) CreateOAuthAccount(ctx context.Context, acc *models.OAuthAccount) error {
	prepareAccount(acc, r.now().UTC())
	return r.insertAccount(ctx, acc)
}

func (r *MongoRepository) FindOAuthAccount(ctx context.Context, provider models.Provider, providerUserID string) (*models.OAuthAccount, error) {
	var a models.OAuthAccount
	err := r.accounts.FindOne(ctx, bson.M{"provider": provider, "providerUserId": providerUserID}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("users: find oauth account: %w", err)
	}
	return &a, nil
}

func (r *MongoRepository) ListOAuthAccounts(ctx context.Context, userID string) ([]*models.OAuthAccount, error) {
	cur, err := r.accounts.Find(ctx, bson.M{"userId": userID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("users: list oauth accounts: %w", err)
	}
	var out []*models.OAuthAccount
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("users: decode oauth accounts: %w", err)
	}
	return out, nil
}

func (r *MongoRepository) UpdateOAuthTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt *time.Time) error {
	set := bson.M{"accessToken": accessToken, "refreshToken": refreshToken, "updatedAt": r.now().UTC()}
	update := bson.M{"$set": set}
	if expiresAt != nil {
		set["expiresAt"] = expiresAt.UTC()
	} else {
		update["$unset"] = bson.M{"expiresAt": ""}
	}
	if _, err := r.accounts.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return fmt.Errorf("users: update oauth tokens: %w", err)
	}
	return nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}
