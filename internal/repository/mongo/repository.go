package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moviestream/internal/domain"
)

type Repository struct {
	collection *mongo.Collection
}

type assetDoc struct {
	ID                string  `bson:"_id"`
	Magnet            string  `bson:"magnet"`
	Status            string  `bson:"status"`
	Progress          float64 `bson:"progress"` // percent 0-100
	OriginalRelPath   string  `bson:"originalRelPath"`
	StreamableRelPath string  `bson:"streamableRelPath"`
	DurationSeconds   float64 `bson:"durationSeconds"`
	LastWatchedAt     int64   `bson:"lastWatchedAt"` // unix seconds; 0 = never watched
	CreatedAt         int64   `bson:"createdAt"`
	UpdatedAt         int64   `bson:"updatedAt"`
}

// assetUpdateDoc mirrors assetDoc minus _id so a full $set never touches the
// key. Every field is always written: eviction clears paths by setting them
// to the empty string.
type assetUpdateDoc struct {
	Magnet            string  `bson:"magnet"`
	Status            string  `bson:"status"`
	Progress          float64 `bson:"progress"`
	OriginalRelPath   string  `bson:"originalRelPath"`
	StreamableRelPath string  `bson:"streamableRelPath"`
	DurationSeconds   float64 `bson:"durationSeconds"`
	LastWatchedAt     int64   `bson:"lastWatchedAt"`
	CreatedAt         int64   `bson:"createdAt"`
	UpdatedAt         int64   `bson:"updatedAt"`
}

func NewRepository(client *mongo.Client, dbName, collectionName string) *Repository {
	return &Repository{collection: client.Database(dbName).Collection(collectionName)}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "lastWatchedAt", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *Repository) Create(ctx context.Context, a domain.MovieAsset) error {
	doc := toDoc(a)
	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
	}
	return err
}

func (r *Repository) Update(ctx context.Context, a domain.MovieAsset) error {
	doc := toUpdateDoc(a)
	filter := bson.M{"_id": string(a.ID)}
	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": doc})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateProgress bumps stored progress with $max so a slow write from an
// earlier poll can never lower the published value.
func (r *Repository) UpdateProgress(ctx context.Context, id domain.MovieID, progress float64) error {
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id)},
		bson.M{
			"$max": bson.M{"progress": progress},
			"$set": bson.M{"updatedAt": time.Now().UTC().Unix()},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) TouchLastWatched(ctx context.Context, id domain.MovieID, at time.Time) error {
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id)},
		bson.M{"$set": bson.M{
			"lastWatchedAt": unixOrZero(at),
			"updatedAt":     time.Now().UTC().Unix(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id domain.MovieID) (domain.MovieAsset, error) {
	var doc assetDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.MovieAsset{}, domain.ErrNotFound
		}
		return domain.MovieAsset{}, err
	}
	return fromDoc(doc), nil
}

func (r *Repository) List(ctx context.Context, filter domain.AssetFilter) ([]domain.MovieAsset, error) {
	query := listQuery(filter)

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []assetDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromDocs(docs), nil
}

// listQuery builds the Mongo filter for List. WatchedBefore excludes
// never-watched assets: lastWatchedAt must be set and older than the cutoff.
func listQuery(filter domain.AssetFilter) bson.M {
	query := bson.M{}
	if len(filter.Statuses) > 0 {
		values := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			values = append(values, string(s))
		}
		query["status"] = bson.M{"$in": values}
	}
	if !filter.WatchedBefore.IsZero() {
		query["lastWatchedAt"] = bson.M{
			"$gt": int64(0),
			"$lt": filter.WatchedBefore.Unix(),
		}
	}
	return query
}

func toDoc(a domain.MovieAsset) assetDoc {
	return assetDoc{
		ID:                string(a.ID),
		Magnet:            a.Magnet,
		Status:            string(a.Status),
		Progress:          a.Progress,
		OriginalRelPath:   a.OriginalRelPath,
		StreamableRelPath: a.StreamableRelPath,
		DurationSeconds:   a.DurationSeconds,
		LastWatchedAt:     unixOrZero(a.LastWatchedAt),
		CreatedAt:         unixOrZero(a.CreatedAt),
		UpdatedAt:         unixOrZero(a.UpdatedAt),
	}
}

func toUpdateDoc(a domain.MovieAsset) assetUpdateDoc {
	return assetUpdateDoc{
		Magnet:            a.Magnet,
		Status:            string(a.Status),
		Progress:          a.Progress,
		OriginalRelPath:   a.OriginalRelPath,
		StreamableRelPath: a.StreamableRelPath,
		DurationSeconds:   a.DurationSeconds,
		LastWatchedAt:     unixOrZero(a.LastWatchedAt),
		CreatedAt:         unixOrZero(a.CreatedAt),
		UpdatedAt:         unixOrZero(a.UpdatedAt),
	}
}

func fromDoc(doc assetDoc) domain.MovieAsset {
	return domain.MovieAsset{
		ID:                domain.MovieID(doc.ID),
		Magnet:            doc.Magnet,
		Status:            domain.AssetStatus(doc.Status),
		Progress:          doc.Progress,
		OriginalRelPath:   doc.OriginalRelPath,
		StreamableRelPath: doc.StreamableRelPath,
		DurationSeconds:   doc.DurationSeconds,
		LastWatchedAt:     timeFromUnix(doc.LastWatchedAt),
		CreatedAt:         timeFromUnix(doc.CreatedAt),
		UpdatedAt:         timeFromUnix(doc.UpdatedAt),
	}
}

func fromDocs(docs []assetDoc) []domain.MovieAsset {
	assets := make([]domain.MovieAsset, 0, len(docs))
	for _, doc := range docs {
		assets = append(assets, fromDoc(doc))
	}
	return assets
}

// timeFromUnix maps the stored 0 back to the zero time so "never watched"
// survives the roundtrip.
func timeFromUnix(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
