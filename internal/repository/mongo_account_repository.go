package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/pkg/errors"
)

// emailCollection reserves each email once across all roles. The email is
// the document _id, so the reservation is unique without a secondary index.
const emailCollection = "account_emails"

type emailReservation struct {
	Email     string      `bson:"_id"`
	Role      models.Role `bson:"role"`
	AccountID string      `bson:"accountId"`
}

// MongoAccountRepository stores accounts as documents, one collection per
// role.
type MongoAccountRepository struct {
	db *mongo.Database
}

// NewMongoAccountRepository creates a repository over db
func NewMongoAccountRepository(db *mongo.Database) *MongoAccountRepository {
	return &MongoAccountRepository{db: db}
}

var _ AccountStore = (*MongoAccountRepository)(nil)

// EnsureIndexes creates the unique lookup indexes on every role collection
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	for _, role := range models.Roles {
		coll, err := r.collection(role)
		if err != nil {
			return err
		}
		_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "businessId", Value: 1}}, Options: options.Index().SetUnique(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (r *MongoAccountRepository) collection(role models.Role) (*mongo.Collection, error) {
	name, err := collectionFor(role)
	if err != nil {
		return nil, err
	}
	return r.db.Collection(name), nil
}

func (r *MongoAccountRepository) Create(ctx context.Context, account *models.Account) error {
	coll, err := r.collection(account.Role)
	if err != nil {
		return err
	}

	doc := *account
	doc.Email = strings.ToLower(doc.Email)

	emails := r.db.Collection(emailCollection)
	reservation := emailReservation{Email: doc.Email, Role: doc.Role, AccountID: doc.ID}
	if _, err := emails.InsertOne(ctx, reservation); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.ErrAccountExists
		}
		return fmt.Errorf("failed to reserve email: %w", err)
	}

	if _, err := coll.InsertOne(ctx, doc); err != nil {
		// release the email so a retry is not blocked by an orphaned reservation
		_, _ = emails.DeleteOne(ctx, bson.M{"_id": doc.Email, "accountId": doc.ID})
		if mongo.IsDuplicateKeyError(err) {
			return errors.ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *MongoAccountRepository) FindByEmail(ctx context.Context, role models.Role, email string) (*models.Account, error) {
	return r.findOne(ctx, role, bson.M{"email": strings.ToLower(email)})
}

func (r *MongoAccountRepository) FindByID(ctx context.Context, role models.Role, id string) (*models.Account, error) {
	return r.findOne(ctx, role, bson.M{"_id": id})
}

func (r *MongoAccountRepository) findOne(ctx context.Context, role models.Role, filter bson.M) (*models.Account, error) {
	coll, err := r.collection(role)
	if err != nil {
		return nil, err
	}

	var account models.Account
	if err := coll.FindOne(ctx, filter).Decode(&account); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	account.Role = role
	return &account, nil
}

// EmailTaken reports whether any role already uses email
func (r *MongoAccountRepository) EmailTaken(ctx context.Context, email string) (bool, error) {
	n, err := r.db.Collection(emailCollection).CountDocuments(ctx, bson.M{"_id": strings.ToLower(email)}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// accounts created before reservations existed
	for _, role := range models.Roles {
		coll, err := r.collection(role)
		if err != nil {
			return false, err
		}
		n, err := coll.CountDocuments(ctx, bson.M{"email": strings.ToLower(email)}, options.Count().SetLimit(1))
		if err != nil {
			return false, fmt.Errorf("failed to check email: %w", err)
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (r *MongoAccountRepository) UpdateLastLogin(ctx context.Context, role models.Role, id string, at time.Time) error {
	return r.updateOne(ctx, role, id, bson.M{"$set": bson.M{"lastLogin": at.UTC(), "updatedAt": at.UTC()}})
}

// RecordFailedLogin applies the increment and the lock decision in one
// pipeline update, so the document is never read and written separately.
func (r *MongoAccountRepository) RecordFailedLogin(ctx context.Context, role models.Role, id string, threshold int, lockFor time.Duration, now time.Time) (models.Lockout, error) {
	coll, err := r.collection(role)
	if err != nil {
		return models.Lockout{}, err
	}

	now = now.UTC()
	reached := bson.D{{Key: "$gte", Value: bson.A{"$systemAccess.loginAttempts", threshold}}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "systemAccess.loginAttempts", Value: bson.D{{Key: "$add", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$systemAccess.loginAttempts", 0}}}, 1,
			}}}},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "systemAccess.accountLocked", Value: bson.D{{Key: "$cond", Value: bson.A{
				reached, true, bson.D{{Key: "$ifNull", Value: bson.A{"$systemAccess.accountLocked", false}}},
			}}}},
			{Key: "systemAccess.lockedUntil", Value: bson.D{{Key: "$cond", Value: bson.A{
				reached, now.Add(lockFor), "$systemAccess.lockedUntil",
			}}}},
			{Key: "updatedAt", Value: now},
		}}},
	}

	var updated struct {
		Lockout models.Lockout `bson:"systemAccess"`
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"systemAccess": 1})
	if err := coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts).Decode(&updated); err != nil {
		if err == mongo.ErrNoDocuments {
			return models.Lockout{}, errors.ErrAccountNotFound
		}
		return models.Lockout{}, fmt.Errorf("failed to increment failed logins: %w", err)
	}

	return updated.Lockout, nil
}

func (r *MongoAccountRepository) ResetLockout(ctx context.Context, role models.Role, id string) error {
	return r.updateOne(ctx, role, id, bson.M{
		"$set":   bson.M{"systemAccess.loginAttempts": 0, "systemAccess.accountLocked": false, "updatedAt": time.Now().UTC()},
		"$unset": bson.M{"systemAccess.lockedUntil": ""},
	})
}

func (r *MongoAccountRepository) SetActive(ctx context.Context, role models.Role, id string, active bool) error {
	return r.updateOne(ctx, role, id, bson.M{"$set": bson.M{"isActive": active, "updatedAt": time.Now().UTC()}})
}

func (r *MongoAccountRepository) UpdatePassword(ctx context.Context, role models.Role, id, hash string, at time.Time) error {
	return r.updateOne(ctx, role, id, bson.M{"$set": bson.M{
		"password":          hash,
		"passwordChangedAt": at.UTC(),
		"updatedAt":         at.UTC(),
	}})
}

func (r *MongoAccountRepository) Ping(ctx context.Context) error {
	if err := r.db.Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDatabaseConnection, err)
	}
	return nil
}

func (r *MongoAccountRepository) updateOne(ctx context.Context, role models.Role, id string, update bson.M) error {
	coll, err := r.collection(role)
	if err != nil {
		return err
	}

	result, err := coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if result.MatchedCount == 0 {
		return errors.ErrAccountNotFound
	}
	return nil
}
