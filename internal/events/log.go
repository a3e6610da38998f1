package events

import (
	"github.com/rs/zerolog"
	"github.com/w3bucket/bucket-provider/pkg/ebus"
)

// AttachLogger subscribes a zerolog sink for every domain event.
func AttachLogger(bus *ebus.Bus, logger zerolog.Logger) {
	ebus.Subscribe(bus, func(ev UnitPriceUpdated) {
		logger.Info().Str("currency", ev.Currency.Hex()).Str("price", ev.Price.String()).Msg("unit price updated")
	})
	ebus.Subscribe(bus, func(ev BucketMinted) {
		logger.Info().Str("owner", ev.Owner.Hex()).Uint64("token", ev.TokenID).
			Uint64("capacity", ev.TotalCapacity).Str("currency", ev.Currency.Hex()).
			Str("amount", ev.AmountPaid.String()).Msg("bucket minted")
	})
	ebus.Subscribe(bus, func(ev PermanentURI) {
		logger.Info().Uint64("token", ev.TokenID).Str("uri", ev.URI).Msg("bucket uri frozen")
	})
	ebus.Subscribe(bus, func(ev BucketRenewed) {
		logger.Info().Uint64("token", ev.TokenID).Str("currency", ev.Currency.Hex()).
			Str("unit_price", ev.UnitPrice.String()).Uint64("capacity_units", ev.CapacityUnits).
			Uint64("period_units", ev.PeriodUnits).Str("by", ev.RenewedBy.Hex()).Msg("bucket renewed")
	})
	ebus.Subscribe(bus, func(ev Withdraw) {
		logger.Info().Str("to", ev.To.Hex()).Str("currency", ev.Currency.Hex()).
			Str("amount", ev.Amount.String()).Msg("collected balance withdrawn")
	})
}
