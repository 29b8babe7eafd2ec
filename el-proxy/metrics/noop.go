package metrics

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	opmetrics "github.com/elciao/elciao/el-service/metrics"
)

type NoopMetrics struct {
	opmetrics.NoopRPCClientMetrics
}

func (n NoopMetrics) RecordInfo(version string) {}

func (n NoopMetrics) RecordUp() {}

func (n NoopMetrics) CacheAdd(typeLabel string, typeCacheSize int, evicted bool) {}

func (n NoopMetrics) CacheGet(typeLabel string, hit bool) {}

func (n NoopMetrics) RecordTrustedTip(number uint64, hash common.Hash) {}

func (n NoopMetrics) RecordReorg(kind string) {}

func (n NoopMetrics) RecordPendingWaits(count int) {}

func (n NoopMetrics) RecordQuery(method string) (onDone func(err error)) {
	return func(err error) {}
}

func (n NoopMetrics) RecordIntegrityFailure(what string) {}

func (n NoopMetrics) RecordFeedEvent(feed string, number uint64) {}

func (n NoopMetrics) RecordNotaryDelivery(sink string, err error) {}

func (n NoopMetrics) RecordHTTPRequest(method string, status int, duration time.Duration, responseLen int) {}

var _ Metricer = NoopMetrics{}
