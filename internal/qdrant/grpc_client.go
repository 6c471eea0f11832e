package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/mcp-server-qdrant/internal/logging"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// DefaultGRPCPort is Qdrant's gRPC port.
	DefaultGRPCPort = 6334
	// restPort is Qdrant's REST port. URLs copied from the dashboard or the
	// Python client usually carry it.
	restPort = 6333
)

// ErrAlreadyExists is returned by CreateCollection when another client
// created the collection first.
var ErrAlreadyExists = errors.New("collection already exists")

// GRPCClient implements Client using Qdrant's official Go client.
type GRPCClient struct {
	client *qdrant.Client
	config *ClientConfig
	logger *logging.Logger
}

// ClientConfig configures the Qdrant gRPC client.
type ClientConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334
	Port int

	// UseTLS enables TLS encryption for gRPC connection.
	UseTLS bool

	// APIKey is the optional API key for authentication.
	APIKey string

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// RequestTimeout bounds every request.
	// Default: 30 seconds
	RequestTimeout time.Duration

	// Distance is the metric for new collections.
	// Default: Cosine
	Distance qdrant.Distance
}

// DefaultClientConfig returns defaults for a local Qdrant.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Host:           "localhost",
		Port:           DefaultGRPCPort,
		MaxMessageSize: 50 * 1024 * 1024, // 50MB
		RequestTimeout: 30 * time.Second,
		Distance:       qdrant.Distance_Cosine,
	}
}

// ConfigFromURL builds a ClientConfig from a Qdrant URL such as
// "https://xyz.cloud.qdrant.io:6333". The https scheme enables TLS. A missing
// port or the REST port 6333 selects the gRPC port 6334.
func ConfigFromURL(rawURL, apiKey string, timeout time.Duration) (*ClientConfig, error) {
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing qdrant url: %w", err)
	}

	cfg := DefaultClientConfig()
	switch u.Scheme {
	case "https":
		cfg.UseTLS = true
	case "http", "grpc":
	default:
		return nil, fmt.Errorf("unsupported qdrant url scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("qdrant url %q has no host", rawURL)
	}
	cfg.Host = host

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port %q: %w", p, err)
		}
		if port != restPort {
			cfg.Port = port
		}
	}

	cfg.APIKey = apiKey
	if timeout > 0 {
		cfg.RequestTimeout = timeout
	}
	return cfg, nil
}

// ApplyDefaults sets default values for unset fields.
func (c *ClientConfig) ApplyDefaults() {
	defaults := DefaultClientConfig()

	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.Distance == qdrant.Distance_UnknownDistance {
		c.Distance = defaults.Distance
	}
}

// Validate validates the client configuration.
func (c *ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid max message size: %d (must be > 0)", c.MaxMessageSize)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("invalid request timeout: %s", c.RequestTimeout)
	}
	return nil
}

// address returns host:port for logging.
func (c *ClientConfig) address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewGRPCClient creates a Qdrant gRPC client. The connection is established
// lazily on the first request.
func NewGRPCClient(config *ClientConfig, logger *logging.Logger) (*GRPCClient, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		APIKey: config.APIKey,
		// The version check logs through slog; Ping reports instead.
		SkipCompatibilityCheck: true,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &GRPCClient{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Ping checks connectivity and logs the server version. A failure is logged,
// not returned, so the server can start before Qdrant does.
func (c *GRPCClient) Ping(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	reply, err := c.client.HealthCheck(ctx)
	if err != nil {
		c.logger.Warn(ctx, "qdrant is not reachable yet",
			zap.String("address", c.config.address()),
			zap.Bool("tls", c.config.UseTLS),
			zap.Error(err),
		)
		return
	}
	c.logger.Info(ctx, "qdrant connection established",
		zap.String("address", c.config.address()),
		zap.String("server_version", reply.GetVersion()),
	)
}

// Health performs a health check on the Qdrant connection.
func (c *GRPCClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	if _, err := c.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// CreateCollection creates a collection of vectorSize-dimensional vectors
// using the configured distance. ErrAlreadyExists reports a lost race.
func (c *GRPCClient) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	err := c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: c.config.Distance,
		}),
	})
	if isAlreadyExists(err) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	return err
}

// CollectionExists checks if a collection exists.
func (c *GRPCClient) CollectionExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	return c.client.CollectionExists(ctx, name)
}

// ListCollections returns a list of all collection names.
func (c *GRPCClient) ListCollections(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	collections, err := c.client.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	if collections == nil {
		collections = []string{}
	}
	return collections, nil
}

// Upsert inserts or updates points in a collection and waits for the write
// to be applied.
func (c *GRPCClient) Upsert(ctx context.Context, collection string, points []*Point) error {
	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, point := range points {
		p, err := convertToQdrantPoint(point)
		if err != nil {
			return err
		}
		qdrantPoints[i] = p
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrantPoints,
	})
	return err
}

// Query returns up to limit points nearest to vector, best first.
func (c *GRPCClient) Query(ctx context.Context, collection string, vector []float32, limit uint64) ([]*ScoredPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	results, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}

	scoredPoints := make([]*ScoredPoint, len(results))
	for i, result := range results {
		scoredPoints[i] = convertFromQdrantScoredPoint(result)
	}
	return scoredPoints, nil
}

// Scroll returns up to limit points matching filter, without vectors.
func (c *GRPCClient) Scroll(ctx context.Context, collection string, filter *Filter, limit uint32) ([]*Point, error) {
	qdrantFilter, err := convertToQdrantFilter(filter)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	results, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         qdrantFilter,
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, err
	}

	points := make([]*Point, len(results))
	for i, p := range results {
		points[i] = convertFromQdrantRetrievedPoint(p)
	}
	return points, nil
}

// Close closes the client connection.
func (c *GRPCClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// isAlreadyExists reports whether err is Qdrant's answer to creating an
// existing collection.
func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	if st.Code() == codes.AlreadyExists {
		return true
	}
	return st.Code() == codes.InvalidArgument && strings.Contains(st.Message(), "already exists")
}

// Helper conversion functions

func convertToQdrantPoint(p *Point) (*qdrant.PointStruct, error) {
	payload, err := qdrant.TryValueMap(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("converting payload of point %s: %w", p.ID, err)
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(p.ID),
		Vectors: qdrant.NewVectors(p.Vector...),
		Payload: payload,
	}, nil
}

func convertFromQdrantScoredPoint(p *qdrant.ScoredPoint) *ScoredPoint {
	return &ScoredPoint{
		Point: Point{
			ID:      extractPointID(p.GetId()),
			Vector:  extractVectorOutput(p.GetVectors()),
			Payload: extractPayload(p.GetPayload()),
		},
		Score: p.GetScore(),
	}
}

func convertFromQdrantRetrievedPoint(p *qdrant.RetrievedPoint) *Point {
	return &Point{
		ID:      extractPointID(p.GetId()),
		Vector:  extractVectorOutput(p.GetVectors()),
		Payload: extractPayload(p.GetPayload()),
	}
}

func extractPointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func extractVectorOutput(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	if vec := vectors.GetVector(); vec != nil {
		if dense := vec.GetDense(); dense != nil {
			return dense.GetData()
		}
		return vec.GetData()
	}
	return nil
}

func extractPayload(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		result[k] = extractValue(v)
	}
	return result
}

func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}

	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_StructValue:
		return extractPayload(val.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		items := val.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = extractValue(item)
		}
		return out
	default:
		return nil
	}
}

func convertToQdrantFilter(f *Filter) (*qdrant.Filter, error) {
	if f == nil || len(f.Must) == 0 {
		return nil, nil
	}

	must := make([]*qdrant.Condition, 0, len(f.Must))
	for _, cond := range f.Must {
		c, err := convertCondition(cond)
		if err != nil {
			return nil, err
		}
		must = append(must, c)
	}
	return &qdrant.Filter{Must: must}, nil
}

func convertCondition(c Condition) (*qdrant.Condition, error) {
	switch v := c.Match.(type) {
	case string:
		return qdrant.NewMatchKeyword(c.Field, v), nil
	case bool:
		return qdrant.NewMatchBool(c.Field, v), nil
	case int:
		return qdrant.NewMatchInt(c.Field, int64(v)), nil
	case int64:
		return qdrant.NewMatchInt(c.Field, v), nil
	default:
		return nil, fmt.Errorf("unsupported match value %T for field %s", c.Match, c.Field)
	}
}
