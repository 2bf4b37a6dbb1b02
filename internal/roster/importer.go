package roster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"event-checkin-backend/config"
	"event-checkin-backend/internal/checkin"
	"event-checkin-backend/internal/logger"
)

// Registrar is the part of the directory the importer needs.
type Registrar interface {
	RegisterMany(ctx context.Context, inputs []checkin.RegisterInput) (checkin.BulkResult, error)
}

// Service pulls the upstream roster page by page and registers every entry.
type Service struct {
	cfg       *config.RosterConfig
	registrar Registrar
	client    *http.Client
}

// NewService creates and initializes a new roster import service.
func NewService(cfg *config.RosterConfig, registrar Registrar) *Service {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.WithFields(map[string]interface{}{"proxy": cfg.HTTPProxy}).WithError(err).
				Warn("invalid proxy URL; roster import will not use a proxy")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Service{
		cfg:       cfg,
		registrar: registrar,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
	}
}

// ImportOnce fetches every page and registers the entries. Entries already registered are
// reported as skipped. Nothing is registered if the first page cannot be fetched.
func (s *Service) ImportOnce(ctx context.Context) (checkin.BulkResult, error) {
	if s.cfg.URL == "" {
		return checkin.BulkResult{}, errors.New("roster.url is not configured")
	}
	log := logger.WithFields(map[string]interface{}{"url": s.cfg.URL})
	log.Info("importing roster")

	var entries []Entry
	total := 1
	pageSize := s.cfg.PageSize
	var fetchErr error
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			log.WithError(err).WithField("page", page).Error("error fetching roster page")
			fetchErr = err
			break
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		entries = append(entries, resp.Data.Items...)
		log.WithFields(map[string]interface{}{"page": page, "fetched": len(entries), "total": total}).Debug("fetched roster page")
	}

	if fetchErr != nil && len(entries) == 0 {
		return checkin.BulkResult{}, fmt.Errorf("roster import aborted: %w", fetchErr)
	}

	inputs := make([]checkin.RegisterInput, 0, len(entries))
	for _, e := range entries {
		inputs = append(inputs, checkin.RegisterInput{
			RegistrationID: e.RegistrationID,
			Name:           e.Name,
			Department:     e.Department,
			GraduationYear: e.GraduationYear,
			Phone:          e.Phone,
			Address:        e.Address,
		})
	}

	res, err := s.registrar.RegisterMany(ctx, inputs)
	if err != nil {
		return res, err
	}
	log.WithFields(map[string]interface{}{"added": len(res.Added), "skipped": len(res.Skipped)}).Info("roster import finished")
	return res, fetchErr
}

// fetchPage fetches a single page of the roster.
func (s *Service) fetchPage(ctx context.Context, page int) (*ApiResponse, error) {
	payload := make(map[string]any)
	for k, v := range s.cfg.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.PageSize

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp ApiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roster response: %w", err)
	}

	if apiResp.Code != 0 {
		return nil, fmt.Errorf("roster API returned non-zero application code: %d", apiResp.Code)
	}

	return &apiResp, nil
}
