package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

// DialTimeout bounds the initial connection to the node.
const DialTimeout = 15 * time.Second

// Dial connects to the node at url.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	return ethclient.DialContext(ctx, url)
}
