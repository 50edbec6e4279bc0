package app

import (
	"context"
	"fmt"
	"time"

	"github.com/supplywise/auth-gateway/cognito"
	"github.com/supplywise/auth-gateway/config"
	"github.com/supplywise/auth-gateway/internal/policy"
	"github.com/supplywise/auth-gateway/middleware"
	"github.com/supplywise/auth-gateway/repositories"
	"github.com/supplywise/auth-gateway/repositories/postgres"
	"github.com/supplywise/auth-gateway/services/audit"
	"github.com/supplywise/auth-gateway/utils"
	"go.uber.org/zap"
)

const auditStopTimeout = 10 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB // nil when no database is configured
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	AccessDecisions repositories.AccessDecisionRepository

	// Authentication
	KeySource *cognito.JWKSKeySource
	Verifier  *cognito.Verifier

	// Authorization
	PolicyEngine *policy.Engine
	AuditService *audit.AuditService

	// Middleware
	AuthMiddleware          *middleware.AuthMiddleware
	AuthorizationMiddleware *middleware.AuthorizationMiddleware
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize signing keys and the token verifier
	if err := deps.initAuthentication(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize authentication: %w", err)
	}

	// Initialize the rule table
	if err := deps.initPolicy(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize authorization policy: %w", err)
	}

	// Initialize PostgreSQL (optional)
	if cfg.Database != nil {
		if err := deps.initDatabase(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	// Initialize the audit trail (optional)
	if cfg.Audit.Enabled {
		if err := deps.initAudit(cfg); err != nil {
			if deps.RepoFactory != nil {
				_ = deps.RepoFactory.Close()
			}
			return nil, fmt.Errorf("failed to initialize audit: %w", err)
		}
	}

	deps.initMiddleware()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initAuthentication resolves the JWKS endpoint and builds the key source and verifier
func (d *Dependencies) initAuthentication(ctx context.Context, cfg *config.Config) error {
	jwksURL, err := cognito.ResolveJWKSURL(ctx, cognito.DiscoveryConfig{
		Region:     cfg.Cognito.Region,
		UserPoolID: cfg.Cognito.UserPoolID,
		Issuer:     cfg.Cognito.Issuer,
		JWKSURL:    cfg.Cognito.JWKSURL,
		Discovery:  cfg.Cognito.Discovery,
	})
	if err != nil {
		return fmt.Errorf("failed to resolve JWKS URL: %w", err)
	}

	keyCfg := cognito.DefaultKeySourceConfig(jwksURL)
	if cfg.Cognito.JWKSTimeout > 0 {
		keyCfg.FetchTimeout = cfg.Cognito.JWKSTimeout
	}
	if cfg.Cognito.JWKSMinRefresh > 0 {
		keyCfg.MinRefreshInterval = cfg.Cognito.JWKSMinRefresh
	}
	d.KeySource = cognito.NewJWKSKeySource(keyCfg, d.Logger)

	if cfg.Cognito.PrefetchKeys {
		if err := d.KeySource.Refresh(ctx); err != nil {
			return fmt.Errorf("failed to load signing keys: %w", err)
		}
	}

	issuer := cfg.Cognito.Issuer
	if issuer == "" && cfg.Cognito.UserPoolID != "" {
		issuer = cognito.IssuerURL(cfg.Cognito.Region, cfg.Cognito.UserPoolID)
	}
	if issuer == "" {
		d.Logger.Warn("no issuer configured, tokens from any issuer are accepted")
	}

	d.Verifier = cognito.NewVerifier(d.KeySource, cognito.VerifierConfig{
		Issuer:      issuer,
		ClientIDs:   cfg.Cognito.ClientIDs,
		TokenUse:    cfg.Cognito.TokenUse,
		AllowedAlgs: cfg.Cognito.AllowedAlgs,
		Leeway:      cfg.Cognito.Leeway,
	})

	d.Logger.Info("token verification initialized",
		zap.String("jwks_url", jwksURL),
		zap.String("issuer", issuer),
		zap.Strings("client_ids", cfg.Cognito.ClientIDs))
	return nil
}

// initPolicy loads the rule table from file or the built-in defaults
func (d *Dependencies) initPolicy(cfg *config.Config) error {
	engine, err := policy.Load(cfg.Authorization.PolicyFile)
	if err != nil {
		if utils.IsValidationError(err) {
			d.Logger.Error("invalid authorization rule",
				zap.String("policy_file", cfg.Authorization.PolicyFile),
				zap.Any("fields", utils.GetValidationFields(err)))
		}
		return err
	}
	d.PolicyEngine = engine

	source := cfg.Authorization.PolicyFile
	if source == "" {
		source = "built-in"
	}
	d.Logger.Info("authorization rules loaded",
		zap.String("source", source),
		zap.Int("rules", len(engine.Rules())))
	return nil
}

// initDatabase initializes the PostgreSQL database connection, schema and repositories
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(*cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	repos := factory.NewRepositories()
	d.AccessDecisions = repos.AccessDecisions

	d.Logger.Info("repositories initialized")
	return nil
}

// initAudit starts the background access decision writer
func (d *Dependencies) initAudit(cfg *config.Config) error {
	if d.AccessDecisions == nil {
		return fmt.Errorf("audit requires a database")
	}

	svc := audit.NewAuditService(d.AccessDecisions, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.Workers,
		BatchSize:   cfg.Audit.BatchSize,
		DenialsOnly: cfg.Audit.DenialsOnly,
	})
	if err := svc.Start(); err != nil {
		return err
	}
	d.AuditService = svc
	return nil
}

// initMiddleware builds the authentication and authorization middleware
func (d *Dependencies) initMiddleware() {
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Verifier, middleware.NewClaimsExtractor(), d.Logger)

	var recorder middleware.DecisionRecorder
	if d.AuditService != nil {
		recorder = d.AuditService
	}
	d.AuthorizationMiddleware = middleware.NewAuthorizationMiddleware(d.PolicyEngine, recorder, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Flush queued audit records before the database goes away
	if d.AuditService != nil {
		if err := d.AuditService.Stop(auditStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
