// Package usagegov meters third-party API consumption and turns it into
// governance signals: dollar costs, limit forecasts and advisory alerts.
//
// The client is embedded in the calling application; metering happens
// in-process and is fail-open, so a storage outage never breaks the
// caller's request path.
//
//	client, _ := usagegov.New(
//	    usagegov.WithRedis("localhost:6379", ""),
//	    usagegov.WithService("search", usagegov.ServiceSpec{
//	        Limit:     1000,
//	        BudgetUSD: 50,
//	        Pricing:   usagegov.FreeCapped{FreeUnits: 10000, FlatFeeUSD: 29, OverageChunk: 1000, OverageUSD: 1},
//	    }),
//	)
//	defer client.Close()
//
//	client.RecordUsage(ctx, "search", "query", usagegov.WithDuration(120*time.Millisecond))
//	report, _ := client.MonthlyCost(ctx, time.Time{})
package usagegov
