package majority

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ZanzyTHEbar/heavy-vote/heavy"
	ports "github.com/ZanzyTHEbar/heavy-vote/heavy/generation/harness/ports"
	"github.com/ZanzyTHEbar/heavy-vote/heavy/metrics"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"
)

// ParseVote maps a voter reply to a 0-based candidate index. The reply must be
// a base-10 integer in [1, n] after trimming whitespace.
func ParseVote(reply string, n int) (int, error) {
	s := strings.TrimSpace(reply)
	if s == "" {
		return -1, &heavy.VoteParseError{Reply: reply, Candidates: n, Reason: "empty reply"}
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return -1, &heavy.VoteParseError{Reply: reply, Candidates: n, Reason: "not an integer"}
	}
	if v < 1 || v > n {
		return -1, &heavy.VoteParseError{Reply: reply, Candidates: n, Reason: fmt.Sprintf("out of range [1, %d]", n)}
	}

	return v - 1, nil
}

// Tally counts valid votes per candidate index.
type Tally []int

func NewTally(n int) Tally { return make(Tally, n) }

// Add counts a vote; out-of-range indices are ignored.
func (t Tally) Add(idx int) {
	if idx >= 0 && idx < len(t) {
		t[idx]++
	}
}

func (t Tally) Total() int {
	total := 0
	for _, c := range t {
		total += c
	}
	return total
}

// Winner returns the index with the most votes; ties go to the lowest index.
// An empty tally yields 0.
func (t Tally) Winner() int {
	best := 0
	for i, c := range t {
		if c > t[best] {
			best = i
		}
	}
	return best
}

// Margin is the lead of the winner over the runner-up.
func (t Tally) Margin() int {
	if len(t) < 2 {
		return t.Total()
	}
	counts := append([]int(nil), t...)
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))
	return counts[0] - counts[1]
}

// Entropy is the Shannon entropy (nats) of the vote distribution.
// Zero means unanimous; an empty tally is also zero.
func (t Tally) Entropy() float64 {
	total := t.Total()
	if total == 0 {
		return 0
	}
	p := make([]float64, len(t))
	for i, c := range t {
		p[i] = float64(c) / float64(total)
	}
	return stat.Entropy(p)
}

// Ballot is the outcome of one voter round.
type Ballot struct {
	Round int
	Reply string
	Index int // -1 when discarded
	Err   error
}

// NumericVoter selects one candidate verbatim by repeated integer votes.
type NumericVoter struct {
	gen         Generator
	model       string
	temperature float64
	rounds      int
	workers     int
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// NewNumericVoter builds a voter running rounds votes on up to workers
// goroutines. rounds <= 0 means one round per candidate.
func NewNumericVoter(gen Generator, model string, temperature float64, rounds, workers int, logger zerolog.Logger, m *metrics.Metrics) *NumericVoter {
	return &NumericVoter{
		gen:         gen,
		model:       model,
		temperature: temperature,
		rounds:      rounds,
		workers:     workers,
		logger:      logger.With().Str("component", "voter").Logger(),
		metrics:     m,
	}
}

func (v *NumericVoter) Mode() Mode { return ModeNumeric }

// Aggregate runs every round, tallies valid votes and returns the winning
// candidate's text. Unparseable replies are discarded; a remote failure in any
// round aborts.
func (v *NumericVoter) Aggregate(ctx context.Context, conv Conversation, candidates []Candidate) (Aggregation, error) {
	n := len(candidates)
	if n == 0 {
		return Aggregation{}, ErrNoCandidates
	}

	rounds := v.rounds
	if rounds <= 0 {
		rounds = n
	}

	messages := conv.With(
		System(VoteInstruction(n)),
		User("Candidates:\n"+numbered("Candidate", candidates)),
	).Messages()

	ballots, err := fanOut(ctx, rounds, v.workers, func(ctx context.Context, round int) (Ballot, error) {
		reply, err := v.gen.Generate(ctx, messages, ports.Options{
			Model:       v.model,
			Temperature: v.temperature,
			Slot:        fmt.Sprintf("vote-%d", round),
		})
		if err != nil {
			return Ballot{}, fmt.Errorf("vote round %d: %w", round, err)
		}
		idx, perr := ParseVote(reply, n)
		return Ballot{Round: round, Reply: reply, Index: idx, Err: perr}, nil
	})
	if err != nil {
		return Aggregation{}, err
	}
	sort.Slice(ballots, func(i, j int) bool { return ballots[i].Round < ballots[j].Round })

	tally := NewTally(n)
	discarded := 0
	for _, b := range ballots {
		var perr *heavy.VoteParseError
		if errors.As(b.Err, &perr) {
			discarded++
			v.logger.Warn().Int("round", b.Round).Str("reason", perr.Reason).Msg("vote discarded")
			continue
		}
		tally.Add(b.Index)
	}

	if tally.Total() == 0 {
		v.logger.Warn().Int("rounds", rounds).Msg("all votes discarded, falling back to first candidate")
	}

	winner := tally.Winner()
	v.metrics.ObserveVotes(tally.Total(), discarded, tally.Entropy())
	v.logger.Info().
		Ints("tally", tally).
		Int("winner", winner+1).
		Int("discarded", discarded).
		Msg("votes tallied")

	return Aggregation{
		Mode:      ModeNumeric,
		Text:      candidates[winner].Text,
		Winner:    winner,
		Tally:     tally,
		Ballots:   ballots,
		Discarded: discarded,
	}, nil
}
