package wire

import (
	"math/rand"
	"sync"
	"time"
)

// Correlation id должен без потерь проходить через JSON и 64-битный сервер,
// поэтому держим его в пределах safe integer двойной точности (2^53-1).
const MaxSafeInteger = 1<<53 - 1

const (
	corrTimeMod   = 1e10 // unix ms по модулю, чтобы произведение не вылезло за 2^53
	corrRandRange = 1e5
)

var (
	corrMu   sync.Mutex
	corrLast int64
)

// NewCorrelationID — «почти монотонный» id: время × 10^5 плюс случайный хвост.
// В пределах процесса уникальность гарантируется (коллизия внутри одной
// миллисекунды разрешается инкрементом).
func NewCorrelationID() int64 {
	corrMu.Lock()
	defer corrMu.Unlock()

	id := (time.Now().UnixMilli()%corrTimeMod)*corrRandRange + rand.Int63n(corrRandRange)
	if id <= corrLast {
		id = corrLast + 1
	}
	corrLast = id

	return id
}
