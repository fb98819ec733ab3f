package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/onec-updater/internal/archive"
	"github.com/oshokin/onec-updater/internal/config"
	"github.com/oshokin/onec-updater/internal/connector"
	"github.com/oshokin/onec-updater/internal/domain/release"
	"github.com/oshokin/onec-updater/internal/logger"
	"github.com/oshokin/onec-updater/internal/repository/history"
	"github.com/oshokin/onec-updater/internal/repository/templates"
)

var (
	errSettingsNotInitialised = errors.New("settings are not initialized")
	errConnectorRequired      = errors.New("connector is not set")
	errUnsafeVersion          = errors.New("reported version cannot be used as a file name")
)

// Options are inputs accepted by the updater entry point.
type Options struct {
	// ConfigPath is the optional path to the settings file.
	ConfigPath string
	// SkipPlatform disables the platform flow regardless of settings.
	SkipPlatform bool
	// SkipConfigurations disables the configuration flow.
	SkipConfigurations bool
	// Connector replaces the HTTP connector built from settings.
	Connector connector.Connector
}

// runner holds the collaborators of a single update execution.
// It is intentionally unexported: call Run(ctx, Options) from callers.
type runner struct {
	settings  *config.Settings
	connector connector.Connector
	store     *templates.Store
	// journal is nil when the download journal is disabled.
	journal history.Journal
}

// Run loads settings and executes the platform flow, then the configuration flow.
// A failure in the platform flow does not prevent the configuration flow;
// both errors are reported.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "onec-updater")

	if opts == nil {
		opts = new(Options)
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultSettingsFilename
	}

	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	removeMarker, err := acquireMarker(ctx, filepath.Join(filepath.Dir(configPath), MarkerFilename))
	if err != nil {
		return err
	}

	defer removeMarker()

	conn := opts.Connector
	if conn == nil {
		conn, err = connector.NewHTTPConnector(settings.Connection.URL,
			connector.WithCallTimeout(settings.Connection.Timeout),
			connector.WithBasicAuth(settings.Connection.Login, settings.Connection.Password),
		)
		if err != nil {
			return err
		}
	}

	u, err := newRunner(settings, conn, openJournal(ctx, settings.HistoryPath))
	if err != nil {
		return err
	}

	defer u.close(ctx)

	var errs []error

	if !opts.SkipPlatform {
		if err = u.updatePlatform(ctx); err != nil {
			logger.ErrorKV(ctx, " < Обновление платформы 1С прервано.", "error", err)
			errs = append(errs, fmt.Errorf("platform: %w", err))
		}
	}

	if !opts.SkipConfigurations {
		if err = u.updateConfigurations(ctx); err != nil {
			logger.ErrorKV(ctx, " < Обновление конфигураций прервано.", "error", err)
			errs = append(errs, fmt.Errorf("configurations: %w", err))
		}
	}

	if err = errors.Join(errs...); err != nil {
		return err
	}

	logger.Info(ctx, "Updater completed")

	return nil
}

// newRunner validates collaborators. journal may be nil.
func newRunner(settings *config.Settings, conn connector.Connector, journal history.Journal) (*runner, error) {
	if settings == nil {
		return nil, errSettingsNotInitialised
	}

	if conn == nil {
		return nil, errConnectorRequired
	}

	return &runner{
		settings:  settings,
		connector: conn,
		store:     templates.NewStore(templates.WithFreeSpaceCheck(settings.CheckFreeSpace)),
		journal:   journal,
	}, nil
}

// openJournal opens the download journal. The journal is best-effort:
// a failure is logged and the run continues without it.
//
//nolint:ireturn,nolintlint // A nil interface disables the journal.
func openJournal(ctx context.Context, path string) history.Journal {
	if path == "" {
		return nil
	}

	journal, err := history.OpenSQLite(ctx, path)
	if err != nil {
		logger.WarnKV(ctx, "Download journal is unavailable", "path", path, "error", err)
		return nil
	}

	return journal
}

// close releases the journal.
func (u *runner) close(ctx context.Context) {
	if u.journal == nil {
		return
	}

	if err := u.journal.Close(); err != nil {
		logger.WarnKV(ctx, "Unable to close download journal", "error", err)
	}
}

// updatePlatform downloads the platform distribution newer than the installed one.
func (u *runner) updatePlatform(ctx context.Context) error {
	ctx = logger.WithName(ctx, "platform")
	platform := u.settings.Platform

	if !platform.Download {
		logger.Info(ctx, " > Обновление платформы 1С отключено.")
		return nil
	}

	logger.Info(ctx, " > Начало обновления платформы 1С.")

	currentVersion, err := u.baselineVersion(ctx, platform.TemplatePath, platform.StartVersion)
	if err != nil {
		return err
	}

	update, err := u.connector.CheckPlatformUpdate(ctx, currentVersion)
	if err != nil {
		return fmt.Errorf("check platform update: %w", err)
	}

	if update == nil {
		logger.Info(ctx, " -- Обновление для текущей версии платформы не найдено.")
		logger.Info(ctx, " < Обновление платформы 1С завершено.")

		return nil
	}

	if release.Same(update.PlatformVersion, currentVersion) {
		logger.Info(ctx, " -- Текущая версия платформы является актуальной.")
		logger.Info(ctx, " < Обновление платформы 1С завершено.")

		return nil
	}

	if !isSafeFilename(update.PlatformVersion) {
		return fmt.Errorf("%q: %w", update.PlatformVersion, errUnsafeVersion)
	}

	logger.InfoKV(ctx, " -- Найдена новая версия платформы 1С.", "version", update.PlatformVersion)
	logger.InfoKV(ctx, " -- Размер файла обновления, Мб.", "size", megabytes(update.Size))

	logger.Info(ctx, " -- Скачивание архива с платформой 1С...")

	downloadURL, err := u.connector.PlatformDownloadURL(ctx, update.DistributionUIN)
	if err != nil {
		return fmt.Errorf("resolve platform download url: %w", err)
	}

	data, err := u.connector.DownloadFile(ctx, downloadURL)
	if err != nil {
		return fmt.Errorf("download platform: %w", err)
	}

	logger.Info(ctx, " -- Скачивание архива с платформой 1С... Завершено!")

	fullPath, err := u.save(ctx, " -- ", u.settings.PlatformPath, update.PlatformVersion+platformArchiveExtension, data)
	if err != nil {
		return err
	}

	u.record(ctx, &history.Record{
		Kind:    history.KindPlatform,
		Product: platformProduct,
		Version: update.PlatformVersion,
		Path:    fullPath,
		Size:    int64(len(data)),
	})

	if err = u.unpack(ctx, " -- ", fullPath); err != nil {
		return err
	}

	logger.Info(ctx, " < Обновление платформы 1С завершено.")

	return nil
}

// updateConfigurations walks every configured product in order.
// "No update" and missing chain steps only skip ahead; a network or
// file-write failure ends the whole loop.
func (u *runner) updateConfigurations(ctx context.Context) error {
	for _, configuration := range u.settings.Configurations {
		if err := u.updateConfiguration(ctx, configuration); err != nil {
			return fmt.Errorf("%s: %w", configuration.ProgramName, err)
		}
	}

	return nil
}

// updateConfiguration downloads every step of the update chain of one product.
func (u *runner) updateConfiguration(ctx context.Context, configuration config.Configuration) error {
	ctx = logger.WithKV(logger.WithName(ctx, "configuration"), "program", configuration.ProgramName)

	logger.InfoKV(ctx, " > Начало обновления конфигурации.", "name", configuration.Name())

	productPath := filepath.Join(u.settings.TemplatePath, configuration.ProgramName)

	currentVersion, err := u.baselineVersion(ctx, productPath, configuration.StartVersion)
	if err != nil {
		return err
	}

	update, err := u.connector.CheckConfigurationUpdate(ctx,
		configuration.ProgramName, currentVersion, configuration.PlatformVersion)
	if err != nil {
		return fmt.Errorf("check configuration update: %w", err)
	}

	if update == nil {
		logger.Info(ctx, " -- Обновление для текущей версии конфигурации не найдено.")
		logger.Info(ctx, " < Обновление конфигурации завершено.")

		return nil
	}

	if update.ConfigurationVersion == "" || release.Same(update.ConfigurationVersion, currentVersion) {
		logger.Info(ctx, " -- Текущая версия конфигурации является актуальной.")
		logger.Info(ctx, " < Обновление конфигурации завершено.")

		return nil
	}

	logger.InfoKV(ctx, " -- Найдена новая версия конфигурации.", "version", update.ConfigurationVersion)
	logger.InfoKV(ctx, " -- Скачивание цепочки обновлений...", "steps", len(update.UpgradeSequence))

	for _, upgradeUIN := range update.UpgradeSequence {
		if err = u.downloadChainStep(ctx, configuration, productPath, upgradeUIN, update.ProgramVersionUIN); err != nil {
			return err
		}
	}

	logger.Info(ctx, " -- < Скачивание цепочки обновлений... Завершено!")
	logger.Info(ctx, " < Обновление конфигурации завершено.")

	return nil
}

// downloadChainStep downloads and stores a single chain step.
// Steps without download data or without a version in their template path
// are skipped; only connector and disk failures are returned.
func (u *runner) downloadChainStep(
	ctx context.Context,
	configuration config.Configuration,
	productPath, upgradeUIN, programVersionUIN string,
) error {
	data, err := u.connector.ConfigurationDownloadData(ctx, upgradeUIN, programVersionUIN)
	if err != nil {
		return fmt.Errorf("chain step %s: %w", upgradeUIN, err)
	}

	if data == nil {
		logger.InfoKV(ctx, " ---- Не удалось скачать обновление.", "uid", upgradeUIN)
		return nil
	}

	logger.InfoKV(ctx, " -- > Скачивание цепочки...", "template_path", data.TemplatePath)
	logger.InfoKV(ctx, " ---- Размер файла обновления, Мб.", "size", megabytes(data.Size))

	stepVersion, found := release.ExtractFromTemplatePath(data.TemplatePath)
	if !found {
		logger.ErrorKV(ctx, " ---- Не удалось определить версию по пути шаблона, шаг пропущен.",
			"uid", upgradeUIN, "template_path", data.TemplatePath)

		return nil
	}

	logger.Info(ctx, " ---- Скачивание файла обновления...")

	archiveData, err := u.connector.DownloadFile(ctx, data.UpdateFileURL)
	if err != nil {
		return fmt.Errorf("download chain step %s: %w", upgradeUIN, err)
	}

	logger.Info(ctx, " ---- Скачивание файла обновления... Завершено!")

	fullPath, err := u.save(ctx, " ---- ", filepath.Join(productPath, stepVersion), ConfigurationArchiveFilename, archiveData)
	if err != nil {
		return err
	}

	u.record(ctx, &history.Record{
		Kind:    history.KindConfiguration,
		Product: configuration.ProgramName,
		Version: stepVersion,
		Path:    fullPath,
		Size:    int64(len(archiveData)),
	})

	return u.unpack(ctx, " ---- ", fullPath)
}

// baselineVersion returns the newest version directory in dir, or fallback
// when there is none. A missing dir counts as empty and is not created here,
// so a run that finds nothing to download leaves the disk untouched.
func (u *runner) baselineVersion(ctx context.Context, dir, fallback string) (string, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		logger.DebugKV(ctx, "Version directory does not exist yet, using start version", "dir", dir, "version", fallback)
		return fallback, nil
	}

	name, found, err := templates.LatestVersionDirectory(dir)
	if err != nil {
		return "", err
	}

	if !found {
		logger.DebugKV(ctx, "No version directory found, using start version", "dir", dir, "version", fallback)
		return fallback, nil
	}

	logger.DebugKV(ctx, "Installed version detected", "dir", dir, "version", name)

	return name, nil
}

// save persists an archive and narrates it at the given nesting level.
func (u *runner) save(ctx context.Context, indent, dir, name string, data []byte) (string, error) {
	logger.Info(ctx, indent+"Сохранение архива на диск...")

	fullPath, err := u.store.Save(ctx, dir, name, data)
	if err != nil {
		return "", err
	}

	logger.InfoKV(ctx, indent+"Полный путь для сохранения.", "path", fullPath)
	logger.Info(ctx, indent+"Сохранение архива на диск... Завершено!")

	return fullPath, nil
}

// unpack extracts the archive in place when extraction is enabled.
func (u *runner) unpack(ctx context.Context, indent, fullPath string) error {
	if !u.settings.UnzipFiles {
		return nil
	}

	logger.Info(ctx, indent+"Распаковка архива...")

	result, err := archive.Unpack(ctx, fullPath, "", false)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, indent+"Распаковка архива... Завершено!",
		"extracted", result.Extracted, "failed", result.Failed)

	return nil
}

// record appends to the download journal. Journal failures are logged only.
func (u *runner) record(ctx context.Context, record *history.Record) {
	if u.journal == nil {
		return
	}

	if err := u.journal.Record(ctx, record); err != nil {
		logger.WarnKV(ctx, "Unable to record download", "path", record.Path, "error", err)
	}
}

// isSafeFilename reports whether name can be used as a single path element.
func isSafeFilename(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name && filepath.IsLocal(name)
}
