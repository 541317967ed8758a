package attribution

import (
	"context"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"github.com/attrib-app/attrib/internal/dataset"
)

// MinSimulations and MaxSimulations bound Shapley sampling.
const (
	MinSimulations = 1000
	MaxSimulations = 20000
)

// maxShapleyChannels is the coalition bitmask width.
const maxShapleyChannels = 64

// Shapley estimates each channel's Shapley value by sampling nSimulations
// random channel orderings. A coalition's worth is the value of converting
// journeys whose channels all belong to it, so each sampled ordering hands
// out exactly the total conversion value.
func (l *Library) Shapley(ctx context.Context, data *dataset.Dataset, channelCol, conversionCol, valueCol string, nSimulations int) (*Table, error) {
	if nSimulations < 1 {
		return nil, fmt.Errorf("simulation count %d must be positive", nSimulations)
	}

	journeys, err := BuildJourneys(data, l.columns(channelCol, conversionCol, valueCol))
	if err != nil {
		return nil, err
	}
	n := len(journeys.Channels)
	if n > maxShapleyChannels {
		return nil, fmt.Errorf("%w: %d channels, at most %d supported", ErrTooManyChannels, n, maxShapleyChannels)
	}

	g := newGame(journeys)

	workers := l.workers()
	if workers > nSimulations {
		workers = nSimulations
	}
	sums := make([][]float64, workers)

	eg, egctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		share := nSimulations / workers
		if w < nSimulations%workers {
			share++
		}
		rng := rand.New(rand.NewPCG(l.Seed, uint64(w)))
		eg.Go(func() error {
			phi, err := g.sample(egctx, rng, share)
			if err != nil {
				return err
			}
			sums[w] = phi
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	credit := make(map[string]float64, n)
	for _, phi := range sums {
		for i, v := range phi {
			credit[journeys.Channels[i]] += v
		}
	}
	for channel := range credit {
		credit[channel] /= float64(nSimulations)
	}

	return channelTable(journeys.Channels, "shapley_value", credit), nil
}

// game is the cooperative game over channels: worth[m] is the conversion
// value of journeys whose channel set is exactly the bitmask m.
type game struct {
	players int
	masks   []uint64
	worth   []float64
}

func newGame(journeys *Journeys) *game {
	index := make(map[string]uint, len(journeys.Channels))
	for i, c := range journeys.Channels {
		index[c] = uint(i)
	}

	byMask := make(map[uint64]int)
	g := &game{players: len(journeys.Channels)}
	for _, j := range journeys.List {
		if !j.Converted {
			continue
		}
		var mask uint64
		for _, c := range j.Touches {
			mask |= 1 << index[c]
		}
		i, ok := byMask[mask]
		if !ok {
			i = len(g.masks)
			byMask[mask] = i
			g.masks = append(g.masks, mask)
			g.worth = append(g.worth, 0)
		}
		g.worth[i] += j.Value
	}
	return g
}

// sample accumulates marginal contributions over n random orderings.
func (g *game) sample(ctx context.Context, rng *rand.Rand, n int) ([]float64, error) {
	phi := make([]float64, g.players)
	order := make([]int, g.players)
	for i := range order {
		order[i] = i
	}

	for s := 0; s < n; s++ {
		if s%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var coalition uint64
		for _, p := range order {
			coalition |= 1 << uint(p)
			phi[p] += g.marginal(coalition, p)
		}
	}
	return phi, nil
}

// marginal is v(S) - v(S without p) for a coalition S containing p: the worth
// of every journey that p completes.
func (g *game) marginal(coalition uint64, p int) float64 {
	bit := uint64(1) << uint(p)
	v := 0.0
	for i, m := range g.masks {
		if m&bit != 0 && m&^coalition == 0 {
			v += g.worth[i]
		}
	}
	return v
}
