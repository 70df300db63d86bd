package auth

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig параметры подключения к MongoDB
type MongoConfig struct {
	URI      string // например mongodb://localhost:27017
	Database string
	Users    string // коллекция пользователей панели
	Bans     string // коллекция бан-листа
}

// MongoStore хранит пользователей панели и бан-лист в MongoDB.
// Реализует UserRepository и BanList.
type MongoStore struct {
	client     *mongo.Client
	users      *mongo.Collection
	bans       *mongo.Collection
	ctxTimeout time.Duration
}

type userDoc struct {
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"password_hash"`
	IsAdmin      bool      `bson:"is_admin"`
	CreatedAt    time.Time `bson:"created_at"`
	LastLogin    time.Time `bson:"last_login"`
}

// banDoc хранит имя в нижнем регистре в key, а оригинальное в Ban.Name
type banDoc struct {
	Key string `bson:"key"`
	Ban `bson:",inline"`
}

// NewMongoStore подключается к MongoDB и создаёт индексы
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "mcserver"
	}
	if cfg.Users == "" {
		cfg.Users = "users"
	}
	if cfg.Bans == "" {
		cfg.Bans = "bans"
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	db := client.Database(cfg.Database)
	m := &MongoStore{
		client:     client,
		users:      db.Collection(cfg.Users),
		bans:       db.Collection(cfg.Bans),
		ctxTimeout: 5 * time.Second,
	}
	if err := m.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("username_unique"),
	})
	if err != nil {
		return err
	}
	_, err = m.bans.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("ban_key_unique"),
	})
	return err
}

func (m *MongoStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	var doc userDoc
	err := m.users.FindOne(ctx, bson.M{"username": normalize(username)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.user(), nil
}

func (m *MongoStore) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	doc := userDoc{
		Username:     normalize(username),
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		CreatedAt:    time.Now(),
	}
	_, err := m.users.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrUserExists
	}
	if err != nil {
		return nil, err
	}
	return doc.user(), nil
}

func (m *MongoStore) ValidateCredentials(ctx context.Context, username, password string) (*User, error) {
	user, err := m.GetUserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	user.LastLogin = time.Now()

	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	_, err = m.users.UpdateOne(ctx,
		bson.M{"username": normalize(username)},
		bson.M{"$set": bson.M{"last_login": user.LastLogin}},
	)
	return user, err
}

func (m *MongoStore) IsBanned(ctx context.Context, name string) (Ban, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	var doc banDoc
	err := m.bans.FindOne(ctx, bson.M{"key": normalize(name)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Ban{}, false, nil
	}
	if err != nil {
		return Ban{}, false, err
	}
	if !doc.Ban.Active(time.Now()) {
		return Ban{}, false, nil
	}
	return doc.Ban, true, nil
}

func (m *MongoStore) Ban(ctx context.Context, ban Ban) error {
	if err := ValidateName(ban.Name); err != nil {
		return err
	}
	if ban.CreatedAt.IsZero() {
		ban.CreatedAt = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	key := normalize(ban.Name)
	_, err := m.bans.ReplaceOne(ctx, bson.M{"key": key}, banDoc{Key: key, Ban: ban},
		options.Replace().SetUpsert(true))
	return err
}

func (m *MongoStore) Unban(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	res, err := m.bans.DeleteOne(ctx, bson.M{"key": normalize(name)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotBanned
	}
	return nil
}

func (m *MongoStore) List(ctx context.Context) ([]Ban, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	cur, err := m.bans.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "key", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	now := time.Now()
	var out []Ban
	for cur.Next(ctx) {
		var doc banDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		if doc.Ban.Active(now) {
			out = append(out, doc.Ban)
		}
	}
	return out, cur.Err()
}

// Close закрывает подключение
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (d userDoc) user() *User {
	return &User{
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		IsAdmin:      d.IsAdmin,
		CreatedAt:    d.CreatedAt,
		LastLogin:    d.LastLogin,
	}
}
