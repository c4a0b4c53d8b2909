package store

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AliyaAkhtar/AQI-PREDICTION/internal/airquality"
)

const (
	fieldCity      = "city"
	fieldTimestamp = "timestamp"
	fieldDate      = "date"
)

// Connect opens a client and verifies the server is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// MongoRowStore keeps one flat document per (city, timestamp): the key fields
// plus one numeric field per column.
type MongoRowStore struct {
	coll *mongo.Collection
}

// NewMongoRowStore ensures the unique (city, timestamp) index exists.
func NewMongoRowStore(ctx context.Context, db *mongo.Database, collection string) (*MongoRowStore, error) {
	coll := db.Collection(collection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: fieldCity, Value: 1}, {Key: fieldTimestamp, Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create index on %s: %w", collection, err)
	}
	return &MongoRowStore{coll: coll}, nil
}

func (s *MongoRowStore) Upsert(ctx context.Context, rows []airquality.Row) (airquality.UpsertResult, error) {
	if len(rows) == 0 {
		return airquality.UpsertResult{}, nil
	}

	writes := make([]mongo.WriteModel, 0, len(rows))
	for _, r := range rows {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: fieldCity, Value: r.Location}, {Key: fieldTimestamp, Value: r.Timestamp.UTC()}}).
			SetReplacement(rowDoc(r)).
			SetUpsert(true))
	}

	res, err := s.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return airquality.UpsertResult{}, fmt.Errorf("bulk upsert %s: %w", s.coll.Name(), err)
	}
	return airquality.UpsertResult{Inserted: int(res.UpsertedCount), Updated: int(res.MatchedCount)}, nil
}

func (s *MongoRowStore) Range(ctx context.Context, location string, from, to time.Time, fields ...string) ([]airquality.Row, error) {
	filter := bson.D{
		{Key: fieldCity, Value: location},
		{Key: fieldTimestamp, Value: bson.D{{Key: "$gte", Value: from.UTC()}, {Key: "$lte", Value: to.UTC()}}},
	}
	opts := options.Find().SetSort(bson.D{{Key: fieldTimestamp, Value: 1}})
	if len(fields) > 0 {
		proj := bson.D{{Key: "_id", Value: 0}, {Key: fieldCity, Value: 1}, {Key: fieldTimestamp, Value: 1}}
		for _, f := range fields {
			proj = append(proj, bson.E{Key: f, Value: 1})
		}
		opts.SetProjection(proj)
	}
	return s.find(ctx, filter, opts)
}

func (s *MongoRowStore) Latest(ctx context.Context, location string, n int) ([]airquality.Row, error) {
	if n <= 0 {
		return nil, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: fieldTimestamp, Value: -1}}).
		SetLimit(int64(n))
	rows, err := s.find(ctx, bson.D{{Key: fieldCity, Value: location}}, opts)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (s *MongoRowStore) All(ctx context.Context, location string) ([]airquality.Row, error) {
	opts := options.Find().SetSort(bson.D{{Key: fieldTimestamp, Value: 1}})
	return s.find(ctx, bson.D{{Key: fieldCity, Value: location}}, opts)
}

func (s *MongoRowStore) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]airquality.Row, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.coll.Name(), err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.coll.Name(), err)
	}

	rows := make([]airquality.Row, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, rowFromDoc(doc))
	}
	return rows, nil
}

// rowDoc is the full stored document for r. Columns absent from r are absent
// from the document, so a replace drops them.
func rowDoc(r airquality.Row) bson.D {
	doc := bson.D{{Key: fieldCity, Value: r.Location}, {Key: fieldTimestamp, Value: r.Timestamp.UTC()}}
	for _, k := range slices.Sorted(maps.Keys(r.Values)) {
		doc = append(doc, bson.E{Key: k, Value: r.Values[k]})
	}
	return doc
}

func rowFromDoc(doc bson.M) airquality.Row {
	var (
		city string
		ts   time.Time
	)
	values := make(map[string]float64, len(doc))
	for k, v := range doc {
		switch k {
		case "_id":
		case fieldCity:
			city, _ = v.(string)
		case fieldTimestamp:
			if dt, ok := v.(primitive.DateTime); ok {
				ts = dt.Time()
			}
		default:
			if f, ok := toFloat(v); ok {
				values[k] = f
			}
		}
	}
	return airquality.NewRow(city, ts, values)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

type forecastDoc struct {
	City         string    `bson:"city"`
	Date         time.Time `bson:"date"`
	AvgAQI       float64   `bson:"avg_aqi"`
	ModelVersion int       `bson:"model_version"`
	Candidate    string    `bson:"candidate"`
	RunID        string    `bson:"run_id"`
	CreatedAt    time.Time `bson:"created_at"`
}

// MongoForecastStore keeps daily forecast rows; duplicates per date are allowed
// and resolved by readers using created_at.
type MongoForecastStore struct {
	coll *mongo.Collection
}

func NewMongoForecastStore(ctx context.Context, db *mongo.Database, collection string) (*MongoForecastStore, error) {
	coll := db.Collection(collection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: fieldCity, Value: 1}, {Key: fieldDate, Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create index on %s: %w", collection, err)
	}
	return &MongoForecastStore{coll: coll}, nil
}

func dateFilter(location string, r airquality.DateRange) bson.D {
	return bson.D{
		{Key: fieldCity, Value: location},
		{Key: fieldDate, Value: bson.D{{Key: "$gt", Value: r.After.UTC()}, {Key: "$lte", Value: r.Through.UTC()}}},
	}
}

func (s *MongoForecastStore) Forecasts(ctx context.Context, location string, r airquality.DateRange) ([]airquality.ForecastRow, error) {
	opts := options.Find().SetSort(bson.D{{Key: fieldDate, Value: 1}, {Key: "created_at", Value: 1}})
	cur, err := s.coll.Find(ctx, dateFilter(location, r), opts)
	if err != nil {
		return nil, fmt.Errorf("query forecasts: %w", err)
	}
	var docs []forecastDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode forecasts: %w", err)
	}

	rows := make([]airquality.ForecastRow, len(docs))
	for i, d := range docs {
		rows[i] = airquality.ForecastRow{
			Location:     d.City,
			Date:         d.Date.UTC(),
			AvgAQI:       d.AvgAQI,
			ModelVersion: d.ModelVersion,
			Candidate:    d.Candidate,
			RunID:        d.RunID,
			CreatedAt:    d.CreatedAt.UTC(),
		}
	}
	return rows, nil
}

func (s *MongoForecastStore) DeleteForecasts(ctx context.Context, location string, r airquality.DateRange) (int, error) {
	res, err := s.coll.DeleteMany(ctx, dateFilter(location, r))
	if err != nil {
		return 0, fmt.Errorf("delete forecasts: %w", err)
	}
	return int(res.DeletedCount), nil
}

func (s *MongoForecastStore) InsertForecasts(ctx context.Context, rows []airquality.ForecastRow) error {
	if len(rows) == 0 {
		return nil
	}
	docs := make([]any, len(rows))
	for i, r := range rows {
		docs[i] = forecastDoc{
			City:         r.Location,
			Date:         r.Date.UTC(),
			AvgAQI:       r.AvgAQI,
			ModelVersion: r.ModelVersion,
			Candidate:    r.Candidate,
			RunID:        r.RunID,
			CreatedAt:    r.CreatedAt.UTC(),
		}
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert forecasts: %w", err)
	}
	return nil
}
