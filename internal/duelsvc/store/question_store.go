package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/korfarm/duel-services/internal/comm"
	"github.com/korfarm/duel-services/internal/duelsvc/engine"
)

type choiceDoc struct {
	ChoiceID string `bson:"choice_id"`
	Text     string `bson:"text"`
}

type questionDoc struct {
	QuestionID string      `bson:"question_id"`
	ServerID   string      `bson:"server_id"`
	Prompt     string      `bson:"prompt"`
	Choices    []choiceDoc `bson:"choices"`
	AnswerID   string      `bson:"answer_id"`
}

// QuestionStore samples match question sets from the per-tier pool.
type QuestionStore struct {
	coll *mongo.Collection
}

func NewQuestionStore(db *mongo.Database) *QuestionStore {
	return &QuestionStore{coll: db.Collection("duel_questions")}
}

// QuestionSet draws n random questions for the server tier. The draw order
// is the play order for every participant of the match.
func (s *QuestionStore) QuestionSet(ctx context.Context, serverID string, n int) ([]comm.Question, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"server_id": serverID}}},
		bson.D{{Key: "$sample", Value: bson.M{"size": n}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to sample questions: %w", err)
	}

	var docs []questionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode questions: %w", err)
	}
	if len(docs) < n {
		return nil, engine.ErrNotEnoughQuestions
	}

	questions := make([]comm.Question, len(docs))
	for i, doc := range docs {
		choices := make([]comm.Choice, len(doc.Choices))
		for j, c := range doc.Choices {
			choices[j] = comm.Choice{ChoiceID: c.ChoiceID, Text: c.Text}
		}
		questions[i] = comm.Question{
			QuestionID: doc.QuestionID,
			Prompt:     doc.Prompt,
			Choices:    choices,
			AnswerID:   doc.AnswerID,
		}
	}
	return questions, nil
}
