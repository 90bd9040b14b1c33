package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/pathways/pkg/api"
)

const mongoTimeout = 5 * time.Second

// MongoStore is a PathwayStore keeping one document per pathway, keyed by
// uuid. Draft and published data are stored as JSON strings so that
// arbitrary item data survives the round trip unchanged.
type MongoStore struct {
	coll *mongo.Collection
}

// Ensure it implements PathwayStore.
var _ PathwayStore = (*MongoStore)(nil)

// NewMongoStore creates a Mongo-backed pathway store.
// dbName defaults to "pathways" if empty, collName defaults to "pathways".
func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	if dbName == "" {
		dbName = "pathways"
	}
	if collName == "" {
		collName = "pathways"
	}

	return &MongoStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoPathwayDoc struct {
	ID             string `bson:"_id"`
	OwnerUserID    *int64 `bson:"owner_user_id,omitempty"`
	OwnerGroupName string `bson:"owner_group_name"`
	Draft          string `bson:"draft"`
	Published      string `bson:"published"`
	CreatedAt      int64  `bson:"created_at"`
	UpdatedAt      int64  `bson:"updated_at"`
}

func toMongoDoc(p *api.Pathway) (mongoPathwayDoc, error) {
	draft, err := EncodeData(p.Draft)
	if err != nil {
		return mongoPathwayDoc{}, err
	}
	published, err := EncodeData(p.Published)
	if err != nil {
		return mongoPathwayDoc{}, err
	}
	return mongoPathwayDoc{
		ID:             p.UUID.String(),
		OwnerUserID:    p.Owner.UserID,
		OwnerGroupName: p.Owner.GroupName,
		Draft:          string(draft),
		Published:      string(published),
		CreatedAt:      toUnixNano(p.CreatedAt),
		UpdatedAt:      toUnixNano(p.UpdatedAt),
	}, nil
}

func (doc mongoPathwayDoc) toPathway() (*api.Pathway, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("stored uuid %q: %w", doc.ID, err)
	}
	draft, err := DecodeData([]byte(doc.Draft))
	if err != nil {
		return nil, err
	}
	published, err := DecodeData([]byte(doc.Published))
	if err != nil {
		return nil, err
	}
	p := &api.Pathway{
		UUID:      id,
		Owner:     api.Owner{GroupName: doc.OwnerGroupName},
		Draft:     draft,
		Published: published,
		CreatedAt: fromUnixNano(doc.CreatedAt),
		UpdatedAt: fromUnixNano(doc.UpdatedAt),
	}
	if doc.OwnerUserID != nil {
		uid := *doc.OwnerUserID
		p.Owner.UserID = &uid
	}
	return p, nil
}

func (s *MongoStore) CreatePathway(ctx context.Context, p *api.Pathway) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	doc, err := toMongoDoc(p)
	if err != nil {
		return err
	}

	_, err = s.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrPathwayExists
	}
	return err
}

func (s *MongoStore) UpdatePathway(ctx context.Context, p *api.Pathway) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	doc, err := toMongoDoc(p)
	if err != nil {
		return err
	}

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrPathwayNotFound
	}
	return nil
}

func (s *MongoStore) GetPathway(ctx context.Context, id uuid.UUID) (*api.Pathway, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	var doc mongoPathwayDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPathwayNotFound
		}
		return nil, err
	}
	return doc.toPathway()
}

func (s *MongoStore) DeletePathway(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrPathwayNotFound
	}
	return nil
}

func (s *MongoStore) ListPathways(ctx context.Context, filter PathwayFilter) ([]*api.Pathway, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*mongoTimeout)
	defer cancel()

	bfilter := bson.M{}
	if filter.OwnerUserID != nil {
		bfilter["owner_user_id"] = *filter.OwnerUserID
	}
	if filter.OwnerGroupName != "" {
		bfilter["owner_group_name"] = filter.OwnerGroupName
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bfilter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	results := []*api.Pathway{}
	for cur.Next(ctx) {
		var doc mongoPathwayDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		p, err := doc.toPathway()
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// MongoEventStore stores pathway events, one document per event.
type MongoEventStore struct {
	coll *mongo.Collection
}

var _ EventStore = (*MongoEventStore)(nil)

type mongoEventDoc struct {
	PathwayUUID string `bson:"pathway_uuid"`
	At          int64  `bson:"at"`
	Type        string `bson:"type"`
	Actor       string `bson:"actor,omitempty"`
	Detail      string `bson:"detail,omitempty"`
}

// NewMongoEventStore creates a Mongo-backed event store.
// dbName defaults to "pathways" if empty, collName defaults to "pathway_events".
func NewMongoEventStore(client *mongo.Client, dbName, collName string) *MongoEventStore {
	if dbName == "" {
		dbName = "pathways"
	}
	if collName == "" {
		collName = "pathway_events"
	}
	return &MongoEventStore{coll: client.Database(dbName).Collection(collName)}
}

func (s *MongoEventStore) AppendEvent(ctx context.Context, ev api.PathwayEvent) error {
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	ev = withTimestamp(ev)
	_, err := s.coll.InsertOne(ctx, mongoEventDoc{
		PathwayUUID: ev.PathwayUUID.String(),
		At:          ev.At.UnixNano(),
		Type:        string(ev.Type),
		Actor:       ev.Actor,
		Detail:      ev.Detail,
	})
	return err
}

func (s *MongoEventStore) ListEvents(ctx context.Context, pathway uuid.UUID) ([]api.PathwayEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*mongoTimeout)
	defer cancel()

	// ObjectIDs grow with insertion order, so _id breaks ties on "at".
	opts := options.Find().SetSort(bson.D{{Key: "at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"pathway_uuid": pathway.String()}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []api.PathwayEvent
	for cur.Next(ctx) {
		var doc mongoEventDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, api.PathwayEvent{
			PathwayUUID: pathway,
			At:          fromUnixNano(doc.At),
			Type:        api.EventType(doc.Type),
			Actor:       doc.Actor,
			Detail:      doc.Detail,
		})
	}
	return out, cur.Err()
}
