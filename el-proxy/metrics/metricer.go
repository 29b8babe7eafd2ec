package metrics

import (
	"github.com/ethereum/go-ethereum/common"

	opmetrics "github.com/elciao/elciao/el-service/metrics"
)

type Metricer interface {
	RecordInfo(version string)
	RecordUp()

	// trust store
	CacheAdd(typeLabel string, typeCacheSize int, evicted bool)
	CacheGet(typeLabel string, hit bool)
	RecordTrustedTip(number uint64, hash common.Hash)
	RecordReorg(kind string)
	RecordPendingWaits(n int)

	// query engine
	RecordQuery(method string) (onDone func(err error))
	RecordIntegrityFailure(what string)

	RecordFeedEvent(feed string, number uint64)
	RecordNotaryDelivery(sink string, err error)

	opmetrics.RPCClientMetricer
	opmetrics.HTTPRecorder
}
