// Package search maintains a full-text index of persisted messages.
// Indexing is best-effort: the message log in the chat store remains the
// source of truth, the index only serves the search endpoint.
package search

import (
	"context"
	"log/slog"
	"time"

	"babble/domain"

	"github.com/blugelabs/bluge"
)

const defaultSearchLimit = 25

type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

type Result struct {
	MessageID string
	Sender    string
	Text      string
	At        time.Time
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Index upserts one message document, keyed by the message UUID.
func (x *MessageIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField("chat_id", message.ChatID)).
		AddField(bluge.NewKeywordField("sender", message.Sender).StoreValue()).
		AddField(bluge.NewTextField("text", message.Text).StoreValue()).
		AddField(bluge.NewStoredOnlyField("at", []byte(message.At.Format(time.RFC3339Nano))))

	return x.writer.Update(doc.ID(), doc)
}

// Search returns messages of one chat matching the query, most relevant
// first, capped at limit (or a default when limit is not positive).
func (x *MessageIndex) Search(ctx context.Context, chatID, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	reader, err := x.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(chatID).SetField("chat_id")).
		AddMust(bluge.NewMatchQuery(query).SetField("text"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var results []Result
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		var result Result
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				result.MessageID = string(value)
			case "sender":
				result.Sender = string(value)
			case "text":
				result.Text = string(value)
			case "at":
				if at, err := time.Parse(time.RFC3339Nano, string(value)); err == nil {
					result.At = at
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}
