// Package lnd provides a gRPC client wrapper for interacting with an LND node.
//
// This package abstracts the Lightning Network Daemon (LND) behind a clean
// interface so the rest of the codebase depends on LightningClient, not on
// LND internals. This makes testing and potential future migration (e.g.,
// CLN) easier.
package lnd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"sathunt/pkg/logger"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Config holds the LND connection settings (populated from config.toml's
// [lnd] section).
type Config struct {
	GRPCHost              string
	GRPCPort              string
	TLSCertPath           string
	MacaroonPath          string
	Network               string
	PaymentTimeoutSeconds int
	MaxPaymentFeeSats     int64
}

// LightningClient is the Lightning payment surface the rest of the codebase
// depends on, not the concrete Client struct. On-chain settlement is a
// non-goal for this project, so the interface only covers invoices, payment,
// and node health.
type LightningClient interface {
	// CreateInvoice issues a BOLT11 invoice for the given amount and memo.
	// Used by the donation-invoice HTTP handler to issue an invoice to be
	// paid into this node.
	CreateInvoice(ctx context.Context, amountMsats int64, memo string, expirySeconds int64) (*Invoice, error)

	// AwaitPayment blocks until the invoice identified by paymentHash is
	// settled or the context is cancelled.
	AwaitPayment(ctx context.Context, paymentHash []byte) error

	// PayInvoice pays a BOLT11 invoice and returns the payment result.
	//   - Decode the invoice and reject it if expired or zero-amount
	//   - Call routerrpc.Router.SendPaymentV2() with a fee limit
	//   - Return PaymentResult with payment_hash, payment_preimage, fee_sats
	PayInvoice(ctx context.Context, bolt11 string, maxFeeSats int64) (*PaymentResult, error)

	// DecodeInvoice decodes a BOLT11 invoice string without paying it.
	//   - Call lnrpc.Lightning.DecodePayReq()
	//   - Report expiry in IsExpired; the invoice is not rejected here
	DecodeInvoice(ctx context.Context, bolt11 string) (*Invoice, error)

	// GetInfo returns basic LND node information. Used for health checks
	// and startup validation.
	GetInfo(ctx context.Context) (*NodeInfo, error)

	// Close closes the underlying gRPC connection.
	Close() error
}

type PaymentResultStatus int

const (
	PaymentSucceeded PaymentResultStatus = iota
	PaymentFailed
	PaymentInFlight
)

type PaymentResult struct {
	PaymentHash     string
	PaymentPreimage string
	FeeSats         int64
	Status          PaymentResultStatus
}

type Invoice struct {
	PaymentRequest string // bolt11 encoded invoice, set when we issued it ourselves
	Destination    string
	AmountSats     int64
	PaymentHash    string
	Expiry         int64
	Description    string
	IsExpired      bool
}

type NodeInfo struct {
	Alias         string
	PubKey        string
	SyncedToChain bool
	SyncedToGraph bool
	BlockHeight   uint32
	NumChannels   uint32
}

// macaroonCredential implements grpc.PerRPCCredentials. It attaches the
// hex-encoded macaroon as gRPC metadata on every RPC call, so LND can
// authenticate and authorize the request.
type macaroonCredential struct {
	macaroon string
}

func (m macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

// RequireTransportSecurity returns true because macaroons are sensitive
// credentials that must only be sent over TLS-encrypted connections.
func (m macaroonCredential) RequireTransportSecurity() bool {
	return true
}

// Client is the gRPC-backed LightningClient implementation.
type Client struct {
	conn          *grpc.ClientConn
	lnClient      lnrpc.LightningClient
	routerClient  routerrpc.RouterClient
	invoiceClient invoicesrpc.InvoicesClient
	Cfg           Config
}

// NewClient dials the configured LND node and validates the connection with
// a GetInfo call before returning.
func NewClient(cfg Config) (*Client, error) {
	creds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("could not load tls cert from %s: %w", cfg.TLSCertPath, err)
	}

	fileMacaroonData, err := os.ReadFile(cfg.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read macaroon file %s: %w", cfg.MacaroonPath, err)
	}
	macaroonCreds := macaroonCredential{macaroon: hex.EncodeToString(fileMacaroonData)}

	url := cfg.GRPCHost + ":" + cfg.GRPCPort
	conn, err := grpc.NewClient(url, grpc.WithTransportCredentials(creds), grpc.WithPerRPCCredentials(macaroonCreds))
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", url, err)
	}

	lnClient := lnrpc.NewLightningClient(conn)

	info, err := lnClient.GetInfo(context.Background(), &lnrpc.GetInfoRequest{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to lnd (is it running? wallet unlocked?): %w", err)
	}

	logger.Info("connected to lnd node",
		zap.String("alias", info.Alias),
		zap.String("pubkey", info.IdentityPubkey),
		zap.Uint32("block_height", info.BlockHeight),
		zap.Bool("synced_to_chain", info.SyncedToChain),
		zap.Bool("synced_to_graph", info.SyncedToGraph),
	)
	if !info.SyncedToChain {
		logger.Warn("lnd is not synced to chain, payments may fail until sync completes", zap.String("alias", info.Alias))
	}

	return &Client{
		conn:          conn,
		lnClient:      lnClient,
		routerClient:  routerrpc.NewRouterClient(conn),
		invoiceClient: invoicesrpc.NewInvoicesClient(conn),
		Cfg:           cfg,
	}, nil
}

// Close closes the underlying gRPC connection to LND.
func (c *Client) Close() error {
	return c.conn.Close()
}

// GetInfo returns basic LND node information.
func (c *Client) GetInfo(ctx context.Context) (*NodeInfo, error) {
	info, err := c.lnClient.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, fmt.Errorf("lnd GetInfo: %w", err)
	}
	return &NodeInfo{
		Alias:         info.Alias,
		PubKey:        info.IdentityPubkey,
		SyncedToChain: info.SyncedToChain,
		SyncedToGraph: info.SyncedToGraph,
		BlockHeight:   info.BlockHeight,
		NumChannels:   info.NumActiveChannels,
	}, nil
}
