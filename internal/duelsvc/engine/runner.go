package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/korfarm/duel-services/internal/comm"
	"github.com/korfarm/duel-services/internal/duelsvc/models"
)

type answerRec struct {
	correct bool
	timeMs  int64
	at      time.Time
}

type playerState struct {
	joinIndex   int
	displayName string
	answers     map[string]answerRec
	lastSubmit  time.Time
}

// Runner scores one ongoing match. It holds the prefetched question set as
// the correctness oracle, accepts answer submissions until every player has
// answered everything or the session deadline fires, then hands the ranked
// results to its finish callback exactly once.
type Runner struct {
	mu        sync.Mutex
	match     *models.Match
	questions []comm.Question
	byID      map[string]comm.Question
	players   map[string]*playerState
	deadline  time.Time
	timer     *time.Timer
	finished  bool
	onFinish  func(match *models.Match, results []models.MatchResult, cancelled bool)
}

func NewRunner(match *models.Match, members []models.Member, questions []comm.Question,
	sessionTimeout time.Duration, onFinish func(*models.Match, []models.MatchResult, bool)) *Runner {

	r := &Runner{
		match:     match,
		questions: questions,
		byID:      make(map[string]comm.Question, len(questions)),
		players:   make(map[string]*playerState, len(members)),
		deadline:  match.StartedAt.Add(sessionTimeout),
		onFinish:  onFinish,
	}
	for _, q := range questions {
		r.byID[q.QuestionID] = q
	}
	for i, m := range members {
		r.players[m.UserID] = &playerState{
			joinIndex:   i,
			displayName: m.DisplayName,
			answers:     make(map[string]answerRec, len(questions)),
		}
	}
	r.timer = time.AfterFunc(time.Until(r.deadline), r.deadlineExpired)
	return r
}

func (r *Runner) Match() *models.Match {
	return r.match
}

func (r *Runner) Questions() []comm.Question {
	return r.questions
}

func (r *Runner) Deadline() time.Time {
	return r.deadline
}

// SubmitAnswer records one answer and reports its correctness. Resubmitting
// the same question overwrites the previous record, so retries after a lost
// ack are safe. The submission that completes the last open slot finishes
// the match inline.
func (r *Runner) SubmitAnswer(userID, questionID, answerID string, timeMs int64) (bool, error) {
	r.mu.Lock()

	if r.finished {
		r.mu.Unlock()
		return false, ErrMatchNotFound
	}
	p, ok := r.players[userID]
	if !ok {
		r.mu.Unlock()
		return false, ErrNotMember
	}
	q, ok := r.byID[questionID]
	if !ok {
		r.mu.Unlock()
		return false, ErrQuestionNotFound
	}

	correct := q.AnswerID == answerID
	now := time.Now()
	p.answers[questionID] = answerRec{correct: correct, timeMs: timeMs, at: now}
	p.lastSubmit = now

	if !r.allAnswered() {
		r.mu.Unlock()
		return correct, nil
	}

	r.finished = true
	r.timer.Stop()
	match, results := r.finalize()
	r.mu.Unlock()

	r.onFinish(match, results, false)
	return correct, nil
}

func (r *Runner) allAnswered() bool {
	for _, p := range r.players {
		if len(p.answers) < len(r.questions) {
			return false
		}
	}
	return true
}

func (r *Runner) deadlineExpired() {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finished = true

	submissions := 0
	for _, p := range r.players {
		submissions += len(p.answers)
	}
	cancelled := submissions == 0

	match, results := r.finalize()
	r.mu.Unlock()

	r.onFinish(match, results, cancelled)
}

// finalize ranks the players. Order is correct count descending, then total
// answer time ascending, then last submission time ascending with players
// who never submitted sorting last, then join order. Ranks are dense and
// deterministic for identical inputs.
func (r *Runner) finalize() (*models.Match, []models.MatchResult) {
	type scored struct {
		result    models.MatchResult
		joinIndex int
		last      time.Time
	}

	deadlineMs := r.deadline.Sub(r.match.StartedAt).Milliseconds()
	ranked := make([]scored, 0, len(r.players))
	for userID, p := range r.players {
		res := models.MatchResult{
			MatchID:     r.match.MatchID,
			UserID:      userID,
			DisplayName: p.displayName,
			SubmittedAt: p.lastSubmit,
		}
		if len(p.answers) == 0 {
			res.TotalTimeMs = deadlineMs
		} else {
			for _, rec := range p.answers {
				if rec.correct {
					res.CorrectCount++
				}
				res.TotalTimeMs += rec.timeMs
			}
		}
		ranked = append(ranked, scored{result: res, joinIndex: p.joinIndex, last: p.lastSubmit})
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.result.CorrectCount != b.result.CorrectCount {
			return a.result.CorrectCount > b.result.CorrectCount
		}
		if a.result.TotalTimeMs != b.result.TotalTimeMs {
			return a.result.TotalTimeMs < b.result.TotalTimeMs
		}
		if !a.last.Equal(b.last) {
			if a.last.IsZero() {
				return false
			}
			if b.last.IsZero() {
				return true
			}
			return a.last.Before(b.last)
		}
		return a.joinIndex < b.joinIndex
	})

	results := make([]models.MatchResult, len(ranked))
	for i, s := range ranked {
		s.result.RankPosition = i + 1
		results[i] = s.result
	}
	return r.match, results
}
