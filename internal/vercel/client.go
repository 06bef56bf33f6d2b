// Package vercel provides a read-only client for the Vercel projects API,
// shaping the upstream project list into the summary the dashboard renders.
package vercel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/victorjmlee/victory-integration/internal/usage"
)

const (
	defaultBaseURL = "https://api.vercel.com"

	providerName = "Vercel"
)

// Client is a minimal Vercel API client. BaseURL and HTTPClient are
// overridable for tests.
type Client struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a Client authenticated with the given access token.
func NewClient(token string) *Client {
	return &Client{
		Token:   token,
		BaseURL: defaultBaseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Project is the shaped project summary returned to the dashboard.
type Project struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Framework             string `json:"framework,omitempty"`
	ProductionURL         string `json:"productionUrl,omitempty"`
	LatestDeploymentState string `json:"latestDeploymentState,omitempty"`
	CreatedAt             int64  `json:"createdAt"`
	UpdatedAt             int64  `json:"updatedAt"`
}

// rawProject mirrors the fields of the upstream project payload this client
// cares about.
type rawProject struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Framework string `json:"framework"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	Targets   struct {
		Production struct {
			Alias []string `json:"alias"`
		} `json:"production"`
	} `json:"targets"`
	Alias []struct {
		Domain string `json:"domain"`
	} `json:"alias"`
	LatestDeployments []struct {
		ReadyState string `json:"readyState"`
	} `json:"latestDeployments"`
}

// Projects fetches the 20 most recent projects and shapes them: the
// production URL comes from the production target's alias, falling back to
// the first project alias.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	reqURL := c.BaseURL + "/v10/projects?limit=20"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("vercel: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vercel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &usage.UpstreamError{Provider: providerName, StatusCode: resp.StatusCode, Body: string(data)}
	}

	var body struct {
		Projects []rawProject `json:"projects"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("vercel: decoding response: %w", err)
	}

	projects := make([]Project, 0, len(body.Projects))
	for _, p := range body.Projects {
		proj := Project{
			ID:        p.ID,
			Name:      p.Name,
			Framework: p.Framework,
			CreatedAt: p.CreatedAt,
			UpdatedAt: p.UpdatedAt,
		}
		if len(p.Targets.Production.Alias) > 0 {
			proj.ProductionURL = p.Targets.Production.Alias[0]
		} else if len(p.Alias) > 0 {
			proj.ProductionURL = p.Alias[0].Domain
		}
		if len(p.LatestDeployments) > 0 {
			proj.LatestDeploymentState = p.LatestDeployments[0].ReadyState
		}
		projects = append(projects, proj)
	}
	return projects, nil
}
