// Package main provides a CLI tool for seeding the database with demo clients.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"clientregistry/internal/config"
	"clientregistry/internal/core/apperror"
	"clientregistry/internal/domain/auth"
	"clientregistry/internal/domain/client"
	"clientregistry/internal/infrastructure/storage/postgres"
	"clientregistry/internal/infrastructure/storage/postgres/client_repo"
	"clientregistry/pkg/logger"
	"clientregistry/pkg/taxid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.Database.URL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	txManager := postgres.NewTxManager(pool)
	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to create audit service", "error", err)
	}
	service := client.NewService(client.ServiceConfig{
		Repo:      client_repo.New(txManager),
		TxManager: txManager,
		Events:    postgres.NewOutboxPublisher(txManager),
		Auditor:   auditService,
	})

	created := 0
	for _, in := range demoClients() {
		ok, err := seedClient(ctx, service, in)
		if err != nil {
			log.Fatalw("failed to seed client", "tax_id", in.TaxID, "error", err)
		}
		if ok {
			created++
		}
	}
	log.Infow("demo clients seeded", "created", created)

	if os.Getenv("SEED_PRINT_TOKEN") == "true" {
		if cfg.Auth.JWTSecret == "" {
			log.Fatal("JWT_SECRET is required to print a token")
		}
		jwtConfig := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)
		jwtConfig.Issuer = cfg.Auth.Issuer
		jwtConfig.AccessTokenTTL = 24 * time.Hour
		token, expires, err := auth.NewJWTService(jwtConfig).
			GenerateAccessToken("seed-operator", "operator@clientregistry.local", []string{auth.RoleEditor, auth.RoleReader})
		if err != nil {
			log.Fatalw("failed to sign token", "error", err)
		}
		fmt.Printf("Bearer token (expires %s):\n%s\n", expires.Format(time.RFC3339), token)
	}

	log.Info("seeding completed successfully")
}

// seedClient creates in unless a client with its tax id already exists.
func seedClient(ctx context.Context, service *client.Service, in client.Input) (bool, error) {
	_, err := service.FindByTaxID(ctx, in.TaxID)
	switch {
	case err == nil:
		return false, nil
	case !apperror.IsNotFound(err):
		return false, err
	}
	if _, err := service.Create(ctx, in); err != nil {
		return false, err
	}
	return true, nil
}

func cpf(body string) string {
	d1, d2 := taxid.CPFCheckDigits(body)
	return fmt.Sprintf("%s%d%d", body, d1, d2)
}

func cnpj(body string) string {
	d1, d2 := taxid.CNPJCheckDigits(body)
	return fmt.Sprintf("%s%d%d", body, d1, d2)
}

func date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func demoClients() []client.Input {
	return []client.Input{
		{
			Kind:      client.KindIndividual,
			TaxID:     cpf("529982247"),
			Email:     "maria.silva@example.com",
			FullName:  "Maria da Silva",
			BirthDate: date(1985, time.March, 14),
			Addresses: []client.AddressInput{
				{Street: "Rua das Flores", Number: "120", District: "Boa Viagem", City: "Recife", State: "PE", PostalCode: "51020-000", Phone: "81999990000", Principal: true},
				{Street: "Avenida Agamenon Magalhaes", Number: "2000", Complement: "Sala 301", District: "Espinheiro", City: "Recife", State: "PE", PostalCode: "52020-000"},
			},
		},
		{
			Kind:       client.KindIndividual,
			TaxID:      cpf("111444777"),
			Email:      "joao.souza@example.com",
			FullName:   "Joao Souza",
			IDDocument: "1234567",
			Addresses: []client.AddressInput{
				{Street: "Rua Augusta", Number: "55", District: "Consolacao", City: "Sao Paulo", State: "SP", PostalCode: "01305-000"},
			},
		},
		{
			Kind:              client.KindCompany,
			TaxID:             cnpj("112223330001"),
			Email:             "contato@acme.com.br",
			LegalName:         "Acme Comercio Ltda",
			StateRegistration: "0123456-78",
			FoundingDate:      date(2009, time.June, 1),
			Addresses: []client.AddressInput{
				{Street: "Avenida Paulista", Number: "1000", District: "Bela Vista", City: "Sao Paulo", State: "SP", PostalCode: "01310-100", Phone: "1133334444", Principal: true},
			},
		},
		{
			Kind:      client.KindCompany,
			TaxID:     cnpj("459974180001"),
			LegalName: "Horizonte Servicos SA",
		},
	}
}
