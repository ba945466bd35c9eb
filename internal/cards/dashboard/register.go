// Package dashboard registers the gateway traffic and route coverage cards.
package dashboard

import cards "gwconsole/internal/cards"

func init() {
	cards.Register(requestTotalsCard{})
	cards.Register(minuteTrafficCard{})
	cards.Register(routeCoverageCard{})
}
