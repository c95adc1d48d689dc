package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// =============================================================================
// MongoDB Message Body Adapter
// =============================================================================

const (
	collectionMessageBodies = "message_bodies"

	// Compression threshold - only compress if content is larger than this
	compressionThreshold = 1024 // 1KB
)

// BodyAdapter implements out.BodyStorePort using MongoDB. Full bodies
// stay out of PostgreSQL; only the snippet and summary live in the row.
type BodyAdapter struct {
	db         *mongo.Database
	collection *mongo.Collection
}

// NewBodyAdapter creates a new MongoDB message body adapter.
func NewBodyAdapter(db *mongo.Database) *BodyAdapter {
	collection := db.Collection(collectionMessageBodies)
	return &BodyAdapter{
		db:         db,
		collection: collection,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *BodyAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "stored_at", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

// bodyDocument represents the MongoDB document structure.
type bodyDocument struct {
	MessageID string `bson:"message_id"`

	// Content (potentially compressed)
	Text         []byte `bson:"text"`
	HTML         []byte `bson:"html"`
	IsCompressed bool   `bson:"is_compressed"`

	OriginalSize int64 `bson:"original_size"`
	StoredSize   int64 `bson:"stored_size"`

	StoredAt time.Time `bson:"stored_at"`
}

// =============================================================================
// Operations
// =============================================================================

// Save upserts a message body keyed by message id.
func (a *BodyAdapter) Save(ctx context.Context, body *domain.MessageBody) error {
	doc, err := a.toDocument(body)
	if err != nil {
		return fmt.Errorf("failed to convert body to document: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"message_id": body.MessageID}

	_, err = a.collection.ReplaceOne(ctx, filter, doc, opts)
	if err != nil {
		return fmt.Errorf("failed to save message body: %w", err)
	}

	return nil
}

// Get retrieves a message body. Missing bodies return nil, not an error;
// a row can legitimately exist without a stored body.
func (a *BodyAdapter) Get(ctx context.Context, messageID string) (*domain.MessageBody, error) {
	var doc bodyDocument
	filter := bson.M{"message_id": messageID}

	err := a.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get message body: %w", err)
	}

	return a.toEntity(&doc)
}

// DeleteMany removes the bodies for the given message ids.
func (a *BodyAdapter) DeleteMany(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	filter := bson.M{"message_id": bson.M{"$in": messageIDs}}

	_, err := a.collection.DeleteMany(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete message bodies: %w", err)
	}

	return nil
}

// =============================================================================
// Conversion Helpers
// =============================================================================

func (a *BodyAdapter) toDocument(body *domain.MessageBody) (*bodyDocument, error) {
	textBytes := []byte(body.TextBody)
	htmlBytes := []byte(body.HTMLBody)
	originalSize := int64(len(textBytes) + len(htmlBytes))

	isCompressed := false
	storedSize := originalSize

	// Compress if content is large enough
	if originalSize > compressionThreshold {
		compressedText, err := compress(textBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to compress text: %w", err)
		}
		compressedHTML, err := compress(htmlBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to compress HTML: %w", err)
		}

		textBytes = compressedText
		htmlBytes = compressedHTML
		isCompressed = true
		storedSize = int64(len(textBytes) + len(htmlBytes))
	}

	return &bodyDocument{
		MessageID:    body.MessageID,
		Text:         textBytes,
		HTML:         htmlBytes,
		IsCompressed: isCompressed,
		OriginalSize: originalSize,
		StoredSize:   storedSize,
		StoredAt:     time.Now(),
	}, nil
}

func (a *BodyAdapter) toEntity(doc *bodyDocument) (*domain.MessageBody, error) {
	textBytes := doc.Text
	htmlBytes := doc.HTML

	// Decompress if needed
	if doc.IsCompressed {
		var err error
		textBytes, err = decompress(doc.Text)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress text: %w", err)
		}
		htmlBytes, err = decompress(doc.HTML)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress HTML: %w", err)
		}
	}

	return &domain.MessageBody{
		MessageID: doc.MessageID,
		TextBody:  string(textBytes),
		HTMLBody:  string(htmlBytes),
	}, nil
}

// =============================================================================
// Compression Helpers
// =============================================================================

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.BodyStorePort = (*BodyAdapter)(nil)
