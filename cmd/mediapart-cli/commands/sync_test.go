package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediapart-bills/internal/billstore"

	"github.com/stretchr/testify/require"
)

const testAccountPage = `<html><body>
<a href="/logout">Se déconnecter</a>
<ul id="factures">
	<li>du 01/09/2023 au 30/09/2023 11,00&nbsp;€ <a href="/facture/F1/pdf">PDF</a></li>
	<li>du 01/10/2023 au 31/10/2023 11,00&nbsp;€ <a href="/facture/F2/pdf">PDF</a></li>
	<li>du 01/11/2023 au 30/11/2023 <a href="/facture/F3/pdf">PDF</a></li>
</ul>
</body></html>`

func testSite() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<form id="logFormEl" method="post" action="/login_check">
			<input name="name"><input name="password" type="password">
		</form>`))
	})
	mux.HandleFunc("/login_check", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: r.FormValue("name"), Path: "/"})
		http.Redirect(w, r, "/account/", http.StatusSeeOther)
	})
	mux.HandleFunc("/account/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testAccountPage))
	})
	mux.HandleFunc("/facture/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF " + r.URL.Path))
	})
	return mux
}

func TestSyncOnce(t *testing.T) {
	server := httptest.NewServer(testSite())
	defer server.Close()

	dir := t.TempDir()
	page := filepath.Join(dir, "page.html")
	*savePage = page
	t.Cleanup(func() { *savePage = "" })

	cfg := Config{
		Login:      "jdoe",
		Password:   "secret",
		FolderPath: filepath.Join(dir, "bills"),
		Db:         DBConfig{File: filepath.Join(dir, "bills.db")},
		BaseUrls: UrlsConfig{
			Site:    server.URL + "/",
			Account: server.URL + "/account/",
		},
		RequestsPerSecond: 100,
	}
	ctx := context.Background()
	store, closeDb, err := openStore(ctx, cfg)
	require.NoError(t, err)
	defer closeDb()

	run, err := syncOnce(ctx, cfg, store)
	require.NoError(t, err)
	require.Equal(t, "accounts", run.Era)
	require.Equal(t, 2, run.Saved)
	require.Equal(t, 1, run.Failures)

	contents, err := os.ReadFile(filepath.Join(cfg.FolderPath, "mediapart_F1_2023-09-01_2023-09-30.pdf"))
	require.NoError(t, err)
	require.Equal(t, "%PDF /facture/F1/pdf", string(contents))
	_, err = os.Stat(page)
	require.NoError(t, err)

	run, err = syncOnce(ctx, cfg, store)
	require.NoError(t, err)
	require.Equal(t, 0, run.Saved)
	require.Equal(t, 2, run.Skipped)

	runs, err := store.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	matches, err := store.MatchOperations(ctx, []billstore.Operation{{
		Label:  "PRLV MEDIAPART",
		Amount: -11,
		Date:   time.Date(2023, 10, 5, 0, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "F1", matches[0].Bills[0].BillId)
}

func TestReadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{login: "jdoe", password: "secret"}`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		base_urls: {site: "http://localhost:8080/"},
	}`), 0600))

	previous := *configName
	*configName = path
	t.Cleanup(func() { *configName = previous })

	cfg, err := readConfig()
	require.NoError(t, err)
	require.Equal(t, "jdoe", cfg.Login)
	require.Equal(t, "bills", cfg.FolderPath)
	require.Equal(t, "bills.db", cfg.Db.File)
	require.Equal(t, "0 6 * * *", cfg.Schedule)

	urls, err := cfg.urls()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/", urls.Login.String())
	require.Equal(t, "https://moncompte.mediapart.fr/", urls.Account.String())
}
