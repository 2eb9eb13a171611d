package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/rpc/common"
	"github.com/ValentinKolb/tpcKV/rpc/transport"
)

func NewHttpClientTransport() transport.IRPCClientTransport {
	return &httpClientTransport{}
}

type httpClientTransport struct {
	client     *http.Client
	retryCount int
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (transport *httpClientTransport) Connect(config common.ClientConfig) error {
	// Create client with default transport
	transport.client = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: max(1, config.Transport.ConnectionsPerEndpoint),
			IdleConnTimeout:     90 * time.Second,
		},
	}
	transport.retryCount = max(1, config.Transport.RetryCount)

	// No error
	return nil
}

func (transport *httpClientTransport) Send(ctx context.Context, endpoint string, req []byte) ([]byte, error) {
	// Check if the transport is initialized
	if transport.client == nil {
		return nil, store.NewError(store.RetCNetwork, "Network Error: http transport not initialized")
	}

	// Create the complete URL
	requestURL := endpoint
	if !strings.Contains(requestURL, "://") {
		requestURL = "http://" + requestURL
	}
	requestURL = strings.TrimSuffix(requestURL, "/") + rpcPath

	var lastErr error
	for i := 0; i < transport.retryCount; i++ {
		resp, err := transport.send(ctx, requestURL, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.Is(err, store.ErrNetwork) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (transport *httpClientTransport) Close() error {
	// Close the client
	if transport.client != nil {
		transport.client.CloseIdleConnections()
	}
	transport.client = nil
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// send performs a single request response exchange
func (transport *httpClientTransport) send(ctx context.Context, requestURL string, req []byte) ([]byte, error) {
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(req))
	if err != nil {
		return nil, store.NewError(store.RetCNetwork, fmt.Sprintf("Network Error: Could not create socket (%v)", err))
	}

	httpResponse, err := transport.client.Do(httpRequest)
	if err != nil {
		if ctx.Err() != nil {
			return nil, store.NewError(store.RetCTimeout, fmt.Sprintf("Timeout Error: no response from %s (%v)", requestURL, ctx.Err()))
		}
		return nil, store.NewError(store.RetCNetwork, fmt.Sprintf("Network Error: Could not send data (%v)", err))
	}
	defer httpResponse.Body.Close()

	// Check if the response status code is OK
	if httpResponse.StatusCode != http.StatusOK {
		return nil, store.NewError(store.RetCNetwork, fmt.Sprintf("Network Error: Could not receive data (%s)", httpResponse.Status))
	}

	// Read the response body
	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, store.NewError(store.RetCTimeout, fmt.Sprintf("Timeout Error: no response from %s (%v)", requestURL, ctx.Err()))
		}
		return nil, store.NewError(store.RetCNetwork, fmt.Sprintf("Network Error: Could not receive data (%v)", err))
	}
	return body, nil
}
