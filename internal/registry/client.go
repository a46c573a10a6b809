// Package registry implements the client for the external vehicle registry:
// a single HTTP POST lookup keyed by registration number and owner name,
// authenticated with a static bearer token.
//
// The upstream responds with a JSON envelope (errCode/result/errMsg/data);
// a lookup is successful only when errCode is "0000", result is "SUCCESS",
// and data.STATUS is "200". Anything else is reported as a failure carrying
// the upstream errMsg.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Detail is the vehicle specification set returned by a successful lookup.
type Detail struct {
	Name         string
	SubModel     string
	Manufacturer string
	Year         int
	FuelType     string
	Transmission string
	DriveType    string
	Price        int64
	Displacement int
	FuelEconomy  string
	FuelTank     string
	FrontTire    string
	RearTire     string
	EngineOil    string
	Wiper        string
	Battery      string
	ImagePath    string
}

// Client is the lookup contract consumed by the vehicle service.
type Client interface {
	// Lookup resolves a registration number and owner name to vehicle details.
	Lookup(ctx context.Context, plate, ownerName string) (*Detail, error)
}

// plateRE matches Korean registration numbers: 2-3 digit region/series code,
// one hangul class letter, 4 digit serial.
var plateRE = regexp.MustCompile(`^\d{2,3}[가-힣]\d{4}$`)

// ValidPlate reports whether plate has the registration-number shape expected
// by the upstream registry.
func ValidPlate(plate string) bool {
	return plateRE.MatchString(strings.TrimSpace(plate))
}

// HTTPClient is the production Client backed by net/http.
type HTTPClient struct {
	// Endpoint is the full lookup URL.
	Endpoint string
	// Token is sent as the Authorization header value.
	Token string
	// HTTP is the underlying client; a default with a 10s timeout is used
	// when nil.
	HTTP *http.Client
}

// NewHTTPClient constructs an HTTPClient with a sane default timeout.
func NewHTTPClient(endpoint, token string) *HTTPClient {
	return &HTTPClient{
		Endpoint: endpoint,
		Token:    token,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

type lookupRequest struct {
	RegiNumber string `json:"REGINUMBER"`
	OwnerName  string `json:"OWNERNAME"`
}

type lookupEnvelope struct {
	ErrCode string     `json:"errCode"`
	Result  string     `json:"result"`
	ErrMsg  string     `json:"errMsg"`
	Data    lookupData `json:"data"`
}

type lookupData struct {
	Status       string `json:"STATUS"`
	CarName      string `json:"CARNAME"`
	SubModel     string `json:"SUBMODEL"`
	Vender       string `json:"VENDER"`
	Year         string `json:"YEAR"`
	Fuel         string `json:"FUEL"`
	Gearbox      string `json:"GEARBOX"`
	Drive        string `json:"DRIVE"`
	Price        string `json:"PRICE"`
	Displacement string `json:"DISPLACEMENT"`
	FuelEco      string `json:"FUELECO"`
	FuelTank     string `json:"FUELTANK"`
	FrontTire    string `json:"FRONTTIRE"`
	RearTire     string `json:"REARTIRE"`
	EngineOil    string `json:"ENGINEOIL"`
	Wiper        string `json:"WIPER"`
	Battery      string `json:"BATTERY"`
	ImagePath    string `json:"IMAGEPATH"`
}

// Lookup posts the registration number and owner name to the registry and
// decodes the returned vehicle details. Non-success envelopes return an
// error carrying the upstream errMsg.
func (c *HTTPClient) Lookup(ctx context.Context, plate, ownerName string) (*Detail, error) {
	payload, err := json.Marshal(lookupRequest{RegiNumber: strings.TrimSpace(plate), OwnerName: strings.TrimSpace(ownerName)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.Token)

	httpc := c.HTTP
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("registry response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry status %d", resp.StatusCode)
	}

	var env lookupEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("registry decode: %w", err)
	}
	if env.ErrCode != "0000" || env.Result != "SUCCESS" || env.Data.Status != "200" {
		msg := env.ErrMsg
		if msg == "" {
			msg = "lookup rejected"
		}
		return nil, fmt.Errorf("registry: %s (errCode=%s)", msg, env.ErrCode)
	}

	return &Detail{
		Name:         env.Data.CarName,
		SubModel:     env.Data.SubModel,
		Manufacturer: env.Data.Vender,
		Year:         atoi(env.Data.Year),
		FuelType:     env.Data.Fuel,
		Transmission: env.Data.Gearbox,
		DriveType:    env.Data.Drive,
		Price:        int64(atoi(env.Data.Price)),
		Displacement: atoi(env.Data.Displacement),
		FuelEconomy:  env.Data.FuelEco,
		FuelTank:     env.Data.FuelTank,
		FrontTire:    env.Data.FrontTire,
		RearTire:     env.Data.RearTire,
		EngineOil:    env.Data.EngineOil,
		Wiper:        env.Data.Wiper,
		Battery:      env.Data.Battery,
		ImagePath:    env.Data.ImagePath,
	}, nil
}

// atoi parses upstream numeric strings, tolerating blanks and separators.
func atoi(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
