package attribution

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/attrib-app/attrib/internal/dataset"
)

const (
	startState      = "(start)"
	conversionState = "(conversion)"
	nullState       = "(null)"

	// stateSeparator joins channels inside a higher-order state.
	stateSeparator = " > "

	// singularTolerance is the smallest pivot the absorption solver accepts.
	singularTolerance = 1e-12
)

// MinMarkovOrder and MaxMarkovOrder bound the chain's memory.
const (
	MinMarkovOrder = 1
	MaxMarkovOrder = 5
)

// chain is a first-order Markov chain over (possibly higher-order) states.
// States 0..n-1 are transient with 0 being the start state; conversion and
// null are the two absorbing states that follow them.
type chain struct {
	names    []string
	channels [][]string // channels each transient state is built from
	edges    [][]edge
}

type edge struct {
	to int
	p  float64
}

func (c *chain) transient() int  { return len(c.channels) }
func (c *chain) conversion() int { return len(c.channels) }
func (c *chain) null() int       { return len(c.channels) + 1 }
func (c *chain) stateCount() int { return len(c.channels) + 2 }

// Markov fits a chain of the given order to the journeys. With the
// transition_matrix output it returns the transition probabilities, one row
// per transient state. With the attribution output it returns each channel's
// share of total conversion value, proportional to its removal effect.
func (l *Library) Markov(ctx context.Context, data *dataset.Dataset, channelCol, conversionCol, valueCol string, order int, output MarkovOutput) (*Table, error) {
	if order < MinMarkovOrder || order > MaxMarkovOrder {
		return nil, fmt.Errorf("markov order %d outside [%d, %d]", order, MinMarkovOrder, MaxMarkovOrder)
	}
	if output != TransitionMatrix && output != MarkovAttribution {
		return nil, fmt.Errorf("%w: markov output %q", ErrUnknownRule, output)
	}

	journeys, err := BuildJourneys(data, l.columns(channelCol, conversionCol, valueCol))
	if err != nil {
		return nil, err
	}

	c := fitChain(journeys, order)
	if output == TransitionMatrix {
		return c.matrix(), nil
	}

	base, err := c.conversionProbability(ctx, nil)
	if err != nil {
		return nil, err
	}

	effects := make(map[string]float64, len(journeys.Channels))
	sum := 0.0
	if base > 0 {
		for _, channel := range journeys.Channels {
			removed := make([]bool, c.transient())
			for s, members := range c.channels {
				for _, m := range members {
					if m == channel {
						removed[s] = true
						break
					}
				}
			}
			p, err := c.conversionProbability(ctx, removed)
			if err != nil {
				return nil, err
			}
			effect := math.Max(0, 1-p/base)
			effects[channel] = effect
			sum += effect
		}
	}

	total := journeys.TotalValue()
	credit := make(map[string]float64, len(effects))
	if sum > 0 {
		for channel, effect := range effects {
			credit[channel] = effect / sum * total
		}
	}
	return channelTable(journeys.Channels, "markov_attribution", credit), nil
}

// fitChain counts transitions between order-k states and normalises them.
func fitChain(journeys *Journeys, order int) *chain {
	c := &chain{
		names:    []string{startState},
		channels: [][]string{nil},
	}
	index := map[string]int{startState: 0}
	counts := []map[int]int{{}}

	state := func(touches []string, i int) int {
		from := i - order + 1
		if from < 0 {
			from = 0
		}
		members := touches[from : i+1]
		name := strings.Join(members, stateSeparator)
		id, ok := index[name]
		if !ok {
			id = len(c.channels)
			index[name] = id
			c.names = append(c.names, name)
			c.channels = append(c.channels, members)
			counts = append(counts, map[int]int{})
		}
		return id
	}

	// absorbing ids are only known once every transient state exists, so
	// terminal transitions are recorded with sentinels first.
	const toConversion, toNull = -1, -2

	for _, j := range journeys.List {
		prev := 0
		for i := range j.Touches {
			s := state(j.Touches, i)
			counts[prev][s]++
			prev = s
		}
		if j.Converted {
			counts[prev][toConversion]++
		} else {
			counts[prev][toNull]++
		}
	}

	c.names = append(c.names, conversionState, nullState)
	c.edges = make([][]edge, c.transient())
	for from, row := range counts {
		total := 0
		for _, n := range row {
			total += n
		}
		for to := 0; to < c.transient(); to++ {
			if n := row[to]; n > 0 {
				c.edges[from] = append(c.edges[from], edge{to: to, p: float64(n) / float64(total)})
			}
		}
		if n := row[toConversion]; n > 0 {
			c.edges[from] = append(c.edges[from], edge{to: c.conversion(), p: float64(n) / float64(total)})
		}
		if n := row[toNull]; n > 0 {
			c.edges[from] = append(c.edges[from], edge{to: c.null(), p: float64(n) / float64(total)})
		}
	}

	return c
}

// matrix renders transition probabilities: rows are transient states,
// columns every state that can be entered.
func (c *chain) matrix() *Table {
	t := &Table{IndexName: "from"}
	for to := 1; to < c.stateCount(); to++ {
		t.Columns = append(t.Columns, c.names[to])
	}
	for from := 0; from < c.transient(); from++ {
		values := make([]float64, len(t.Columns))
		for _, e := range c.edges[from] {
			values[e.to-1] = e.p
		}
		t.Rows = append(t.Rows, Row{Label: c.names[from], Values: values})
	}
	return t
}

// conversionProbability solves the absorption system (I-Q)x = r for the
// probability of reaching the conversion state from start, where Q holds
// transient-to-transient transitions and r the one-step conversion
// probabilities. States flagged in removed are redirected to null, so their
// rows reduce to x[s] = 0. The system is solved exactly with Gaussian
// elimination and partial pivoting.
func (c *chain) conversionProbability(ctx context.Context, removed []bool) (float64, error) {
	n := c.transient()

	// augmented matrix, column n holds r
	a := make([][]float64, n)
	for s := range n {
		a[s] = make([]float64, n+1)
		a[s][s] = 1
		if removed != nil && removed[s] {
			continue
		}
		for _, e := range c.edges[s] {
			switch {
			case e.to == c.conversion():
				a[s][n] += e.p
			case e.to < n:
				a[s][e.to] -= e.p
			}
		}
	}

	for col := range n {
		if col%64 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}

		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < singularTolerance {
			return 0, fmt.Errorf("%w: state %q never reaches an absorbing state", ErrSingularChain, c.names[col])
		}
		a[col], a[pivot] = a[pivot], a[col]

		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			if f == 0 {
				continue
			}
			for k := col; k <= n; k++ {
				a[r][k] -= f * a[col][k]
			}
		}
	}

	x := make([]float64, n)
	for r := n - 1; r >= 0; r-- {
		v := a[r][n]
		for k := r + 1; k < n; k++ {
			v -= a[r][k] * x[k]
		}
		x[r] = v / a[r][r]
	}
	return math.Min(1, math.Max(0, x[0])), nil
}
