package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/maraichr/creditlens/pkg/models"
)

// ErrNotFound means no provider knows the CNPJ.
var ErrNotFound = errors.New("company not found in registry")

// Lookup resolves a normalized CNPJ to its registry record.
type Lookup interface {
	Lookup(ctx context.Context, cnpj string) (*models.RegistryRecord, error)
}

// Client queries ReceitaWS and falls back to BrasilAPI.
type Client struct {
	primaryURL  string
	fallbackURL string
	http        *http.Client
	logger      *slog.Logger
}

func NewClient(primaryURL, fallbackURL string, logger *slog.Logger) *Client {
	return &Client{
		primaryURL:  strings.TrimRight(primaryURL, "/"),
		fallbackURL: strings.TrimRight(fallbackURL, "/"),
		http:        &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

func (c *Client) Lookup(ctx context.Context, cnpj string) (*models.RegistryRecord, error) {
	cnpj = Normalize(cnpj)

	type provider struct {
		name  string
		fetch func(context.Context, string) (*models.RegistryRecord, error)
	}
	providers := []provider{
		{"receitaws", c.fromReceitaWS},
		{"brasilapi", c.fromBrasilAPI},
	}

	notFound := 0
	var errs []error
	for _, p := range providers {
		rec, err := p.fetch(ctx, cnpj)
		if err == nil {
			rec.Source = p.name
			return rec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrNotFound) {
			notFound++
		} else {
			c.logger.Warn("registry provider failed",
				slog.String("provider", p.name),
				slog.String("error", err.Error()))
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
	}
	if notFound == len(providers) {
		return nil, ErrNotFound
	}
	return nil, errors.Join(errs...)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("registry API error (status %d): %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, nil
}

type receitaWSResponse struct {
	Status             string `json:"status"`
	Message            string `json:"message"`
	CNPJ               string `json:"cnpj"`
	Nome               string `json:"nome"`
	Fantasia           string `json:"fantasia"`
	Situacao           string `json:"situacao"`
	Abertura           string `json:"abertura"`
	CapitalSocial      string `json:"capital_social"`
	NaturezaJuridica   string `json:"natureza_juridica"`
	AtividadePrincipal []struct {
		Text string `json:"text"`
	} `json:"atividade_principal"`
	Logradouro string `json:"logradouro"`
	Numero     string `json:"numero"`
	Bairro     string `json:"bairro"`
	Municipio  string `json:"municipio"`
	UF         string `json:"uf"`
	CEP        string `json:"cep"`
}

func (c *Client) fromReceitaWS(ctx context.Context, cnpj string) (*models.RegistryRecord, error) {
	body, err := c.get(ctx, c.primaryURL+"/"+cnpj)
	if err != nil {
		return nil, err
	}
	var r receitaWSResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if strings.EqualFold(r.Status, "ERROR") {
		if strings.Contains(strings.ToLower(r.Message), "inválido") || strings.Contains(strings.ToLower(r.Message), "not found") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("receitaws error: %s", r.Message)
	}

	rec := &models.RegistryRecord{
		CNPJ:        Normalize(r.CNPJ),
		LegalName:   r.Nome,
		TradeName:   r.Fantasia,
		Status:      r.Situacao,
		LegalNature: r.NaturezaJuridica,
		Address: models.Address{
			Street: r.Logradouro, Number: r.Numero, District: r.Bairro,
			City: r.Municipio, State: r.UF, PostalCode: r.CEP,
		},
	}
	if len(r.AtividadePrincipal) > 0 {
		rec.MainActivity = r.AtividadePrincipal[0].Text
	}
	if t, err := time.Parse("02/01/2006", r.Abertura); err == nil {
		rec.IncorporationDate = &t
	}
	if v, ok := parseCapital(r.CapitalSocial); ok {
		rec.DeclaredCapital = &v
	}
	return rec, nil
}

type brasilAPIResponse struct {
	CNPJ                       string          `json:"cnpj"`
	RazaoSocial                string          `json:"razao_social"`
	NomeFantasia               string          `json:"nome_fantasia"`
	DescricaoSituacaoCadastral string          `json:"descricao_situacao_cadastral"`
	DataInicioAtividade        string          `json:"data_inicio_atividade"`
	CapitalSocial              json.RawMessage `json:"capital_social"`
	NaturezaJuridica           string          `json:"natureza_juridica"`
	CNAEFiscalDescricao        string          `json:"cnae_fiscal_descricao"`
	Logradouro                 string          `json:"logradouro"`
	Numero                     string          `json:"numero"`
	Bairro                     string          `json:"bairro"`
	Municipio                  string          `json:"municipio"`
	UF                         string          `json:"uf"`
	CEP                        string          `json:"cep"`
}

func (c *Client) fromBrasilAPI(ctx context.Context, cnpj string) (*models.RegistryRecord, error) {
	body, err := c.get(ctx, c.fallbackURL+"/"+cnpj)
	if err != nil {
		return nil, err
	}
	var r brasilAPIResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if r.CNPJ == "" && r.RazaoSocial == "" {
		return nil, ErrNotFound
	}

	rec := &models.RegistryRecord{
		CNPJ:         Normalize(r.CNPJ),
		LegalName:    r.RazaoSocial,
		TradeName:    r.NomeFantasia,
		Status:       r.DescricaoSituacaoCadastral,
		LegalNature:  r.NaturezaJuridica,
		MainActivity: r.CNAEFiscalDescricao,
		Address: models.Address{
			Street: r.Logradouro, Number: r.Numero, District: r.Bairro,
			City: r.Municipio, State: r.UF, PostalCode: r.CEP,
		},
	}
	if t, err := time.Parse("2006-01-02", r.DataInicioAtividade); err == nil {
		rec.IncorporationDate = &t
	}
	if len(r.CapitalSocial) > 0 {
		if v, ok := parseCapital(strings.Trim(string(r.CapitalSocial), `"`)); ok {
			rec.DeclaredCapital = &v
		}
	}
	return rec, nil
}

// parseCapital accepts "1000.00", "1.000,00" and plain numbers.
func parseCapital(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Replace(s, ",", ".", 1)
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
