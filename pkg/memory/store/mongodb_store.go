package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/recall/pkg/memory/model"
)

// MongoStore keeps one document per memory and per character.
type MongoStore struct {
	client     *mongo.Client
	memories   *mongo.Collection
	characters *mongo.Collection
}

const mongoCloseTimeout = 5 * time.Second

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	db := client.Database(database)
	return &MongoStore{
		client:     client,
		memories:   db.Collection("scene_memories"),
		characters: db.Collection("scene_characters"),
	}, nil
}

type mongoMemoryDocument struct {
	ChatID             string    `bson:"chat_id"`
	ID                 string    `bson:"memory_id"`
	Summary            string    `bson:"summary"`
	Importance         int       `bson:"importance"`
	MessageIDs         []int     `bson:"message_ids"`
	Sequence           int64     `bson:"sequence"`
	CharactersInvolved []string  `bson:"characters_involved,omitempty"`
	Witnesses          []string  `bson:"witnesses,omitempty"`
	IsSecret           bool      `bson:"is_secret"`
	Embedding          []float64 `bson:"embedding,omitempty"`
	Tags               []string  `bson:"tags,omitempty"`
}

type mongoCharacterDocument struct {
	ChatID           string   `bson:"chat_id"`
	Name             string   `bson:"name"`
	CurrentEmotion   string   `bson:"current_emotion"`
	EmotionIntensity int      `bson:"emotion_intensity"`
	KnownEvents      []string `bson:"known_events,omitempty"`
}

func (doc mongoMemoryDocument) toMemory() model.Memory {
	return model.Memory{
		ID:                 doc.ID,
		Summary:            doc.Summary,
		Importance:         doc.Importance,
		MessageIDs:         doc.MessageIDs,
		Sequence:           doc.Sequence,
		CharactersInvolved: doc.CharactersInvolved,
		Witnesses:          doc.Witnesses,
		IsSecret:           doc.IsSecret,
		Embedding:          float32Embedding(doc.Embedding),
		Tags:               doc.Tags,
	}.Normalized()
}

func memoryDocument(chatID string, m model.Memory) mongoMemoryDocument {
	m = m.Normalized()
	return mongoMemoryDocument{
		ChatID:             chatID,
		ID:                 m.ID,
		Summary:            m.Summary,
		Importance:         m.Importance,
		MessageIDs:         m.MessageIDs,
		Sequence:           m.Sequence,
		CharactersInvolved: m.CharactersInvolved,
		Witnesses:          m.Witnesses,
		IsSecret:           m.IsSecret,
		Embedding:          float64Embedding(m.Embedding),
		Tags:               m.Tags,
	}
}

func (ms *MongoStore) Load(ctx context.Context, chatID string) (Snapshot, error) {
	if ms == nil || ms.memories == nil {
		return Snapshot{}, ErrNotFound
	}
	cur, err := ms.memories.Find(ctx, bson.M{"chat_id": chatID},
		options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}, {Key: "memory_id", Value: 1}}))
	if err != nil {
		return Snapshot{}, err
	}
	var docs []mongoMemoryDocument
	if err := cur.All(ctx, &docs); err != nil {
		return Snapshot{}, err
	}

	ccur, err := ms.characters.Find(ctx, bson.M{"chat_id": chatID})
	if err != nil {
		return Snapshot{}, err
	}
	var chars []mongoCharacterDocument
	if err := ccur.All(ctx, &chars); err != nil {
		return Snapshot{}, err
	}
	if len(docs) == 0 && len(chars) == 0 {
		return Snapshot{}, ErrNotFound
	}
	return snapshotFromDocuments(docs, chars), nil
}

func snapshotFromDocuments(docs []mongoMemoryDocument, chars []mongoCharacterDocument) Snapshot {
	snap := Snapshot{Characters: model.Characters{}}
	for _, doc := range docs {
		snap.Memories = append(snap.Memories, doc.toMemory())
	}
	for _, c := range chars {
		snap.Characters[c.Name] = model.CharacterState{
			Name:             c.Name,
			CurrentEmotion:   c.CurrentEmotion,
			EmotionIntensity: c.EmotionIntensity,
			KnownEvents:      c.KnownEvents,
		}
	}
	return snap
}

func (ms *MongoStore) SaveEmbeddings(ctx context.Context, chatID string, embeddings map[string][]float32) error {
	if ms == nil || ms.memories == nil || len(embeddings) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(embeddings))
	for id, vec := range embeddings {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"chat_id": chatID, "memory_id": id}).
			SetUpdate(bson.M{"$set": bson.M{"embedding": float64Embedding(vec)}}))
	}
	_, err := ms.memories.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	return err
}

func (ms *MongoStore) PutMemories(ctx context.Context, chatID string, memories []model.Memory) error {
	if ms == nil || ms.memories == nil || len(memories) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(memories))
	for _, m := range memories {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"chat_id": chatID, "memory_id": m.ID}).
			SetReplacement(memoryDocument(chatID, m)).
			SetUpsert(true))
	}
	_, err := ms.memories.BulkWrite(ctx, writes)
	return err
}

func (ms *MongoStore) PutCharacters(ctx context.Context, chatID string, characters model.Characters) error {
	if ms == nil || ms.characters == nil || len(characters) == 0 {
		return nil
	}
	writes := make([]mongo.WriteModel, 0, len(characters))
	for name, st := range characters {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"chat_id": chatID, "name": name}).
			SetReplacement(mongoCharacterDocument{
				ChatID:           chatID,
				Name:             name,
				CurrentEmotion:   st.CurrentEmotion,
				EmotionIntensity: st.EmotionIntensity,
				KnownEvents:      st.KnownEvents,
			}).
			SetUpsert(true))
	}
	_, err := ms.characters.BulkWrite(ctx, writes)
	return err
}

// CreateSchema creates the lookup indexes.
func (ms *MongoStore) CreateSchema(ctx context.Context) error {
	if ms == nil || ms.memories == nil {
		return nil
	}
	if _, err := ms.memories.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "memory_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	_, err := ms.characters.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (ms *MongoStore) Close() error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

func float64Embedding(vec []float32) []float64 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

func float32Embedding(vec []float64) []float32 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
