package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
	"usd/internal/models"
	"usd/internal/providers"
	"usd/internal/storage/interfaces"
	"usd/internal/structures"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/afero"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	UnknownDeviceModel = "Unknown Device"

	dmiVendorPath  = "/sys/class/dmi/id/sys_vendor"
	dmiProductPath = "/sys/class/dmi/id/product_name"
)

var dmiPlaceholders = []string{
	"to be filled by o.e.m.",
	"system product name",
	"system manufacturer",
	"default string",
	"not specified",
}

type ModelProviderInterface interface {
	Model(ctx context.Context) string
}

type DeviceIdentityInterface interface {
	EnsureDeviceId(ctx context.Context) (string, error)
}

// HostModelProvider resolves the hardware model once: config override, then
// DMI, then the platform reported by gopsutil.
type HostModelProvider struct {
	override string
	fs       afero.Fs
	hostInfo func(ctx context.Context) (*host.InfoStat, error)
	logger   providers.Logger

	mu    sync.Mutex
	model string
}

func NewModelProvider(conf *structures.Config, fs afero.Fs, logger providers.Logger) ModelProviderInterface {
	return &HostModelProvider{
		override: strings.TrimSpace(conf.Device.Model),
		fs:       fs,
		hostInfo: host.InfoWithContext,
		logger:   logger,
	}
}

func (h *HostModelProvider) Model(ctx context.Context) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.model != "" {
		return h.model
	}
	model := h.resolve(ctx)
	if model != UnknownDeviceModel {
		h.model = model
	}
	return model
}

func (h *HostModelProvider) resolve(ctx context.Context) string {
	if h.override != "" {
		return h.override
	}

	vendor := h.readDMI(dmiVendorPath)
	product := h.readDMI(dmiProductPath)
	switch {
	case vendor != "" && product != "" && !strings.HasPrefix(strings.ToLower(product), strings.ToLower(vendor)):
		return vendor + " " + product
	case product != "":
		return product
	case vendor != "":
		return vendor
	}

	info, err := h.hostInfo(ctx)
	if err != nil {
		h.logger.Warnf(providers.TypeApp, "Host info unavailable: %s", err)
		return UnknownDeviceModel
	}
	model := strings.TrimSpace(strings.Join(strings.Fields(info.Platform+" "+info.KernelArch), " "))
	if model == "" {
		return UnknownDeviceModel
	}
	return model
}

func (h *HostModelProvider) readDMI(path string) string {
	data, err := afero.ReadFile(h.fs, path)
	if err != nil {
		return ""
	}
	value := strings.TrimSpace(string(data))
	for _, placeholder := range dmiPlaceholders {
		if strings.EqualFold(value, placeholder) {
			return ""
		}
	}
	return value
}

// CapitalizeWords title-cases a lower-case first letter of every
// space-separated word and keeps the rest, punctuation included.
func CapitalizeWords(s string) string {
	caser := cases.Title(language.Und, cases.NoLower)
	words := strings.Split(s, " ")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 || !unicode.IsLower(r) {
			continue
		}
		words[i] = caser.String(w[:size]) + w[size:]
	}
	return strings.Join(words, " ")
}

func FormatDeviceID(displayName string, model string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		model = UnknownDeviceModel
	}
	return fmt.Sprintf("%s (%s)", strings.TrimSpace(displayName), CapitalizeWords(model))
}

// IsLegacyDeviceID reports ids from the old random-identifier scheme.
func IsLegacyDeviceID(id string) bool {
	_, err := uuid.Parse(strings.TrimSpace(id))
	return err == nil
}

type DeviceIdentityService struct {
	settings      interfaces.SettingsStoreInterface
	modelProvider ModelProviderInterface
	logger        providers.Logger
}

func NewDeviceIdentityService(settings interfaces.SettingsStoreInterface, modelProvider ModelProviderInterface, logger providers.Logger) DeviceIdentityInterface {
	return &DeviceIdentityService{
		settings:      settings,
		modelProvider: modelProvider,
		logger:        logger,
	}
}

// EnsureDeviceId returns the stored id, deriving and persisting a new one when
// it is blank, a legacy UUID, or no longer carries the current display name.
// The check and the write happen in one settings update.
func (d *DeviceIdentityService) EnsureDeviceId(ctx context.Context) (string, error) {
	model := d.modelProvider.Model(ctx)

	var deviceID string
	var regenerated bool
	err := d.settings.Update(func(st *models.Settings) error {
		name := strings.TrimSpace(st.DisplayName)
		stored := strings.TrimSpace(st.DeviceID)

		if name == "" {
			if stored != "" {
				deviceID = st.DeviceID
				return nil
			}
			st.DeviceID = uuid.NewString()
		} else if stored == "" || IsLegacyDeviceID(stored) || !strings.HasPrefix(stored, name+" (") {
			st.DeviceID = FormatDeviceID(name, model)
		} else {
			deviceID = st.DeviceID
			return nil
		}

		deviceID = st.DeviceID
		regenerated = true
		return nil
	})
	if err != nil {
		return "", err
	}

	if regenerated {
		d.logger.Infof(providers.TypeUploader, "Device id set to %q", deviceID)
	}
	return deviceID, nil
}
