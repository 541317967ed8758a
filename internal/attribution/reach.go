package attribution

import (
	"github.com/attrib-app/attrib/internal/dataset"
	"github.com/attrib-app/attrib/internal/stats"
)

// ChannelReach counts the journeys a channel appears in and how many of them
// converted.
type ChannelReach struct {
	Channel     string
	Touches     int
	Journeys    int
	Conversions int
	Rate        stats.Rate
}

// Reach tallies per-channel journey reach and conversion rate with a 95%
// Wilson interval.
func (l *Library) Reach(data *dataset.Dataset, channelCol, conversionCol, valueCol string) ([]ChannelReach, error) {
	journeys, err := BuildJourneys(data, l.columns(channelCol, conversionCol, valueCol))
	if err != nil {
		return nil, err
	}

	byChannel := make(map[string]*ChannelReach, len(journeys.Channels))
	out := make([]ChannelReach, len(journeys.Channels))
	for i, c := range journeys.Channels {
		out[i].Channel = c
		byChannel[c] = &out[i]
	}

	for _, j := range journeys.List {
		inJourney := make(map[string]bool, len(j.Touches))
		for _, c := range j.Touches {
			byChannel[c].Touches++
			inJourney[c] = true
		}
		for c := range inJourney {
			r := byChannel[c]
			r.Journeys++
			if j.Converted {
				r.Conversions++
			}
		}
	}

	for i := range out {
		out[i].Rate = stats.NewRate(out[i].Conversions, out[i].Journeys, 0.95)
	}
	return out, nil
}
