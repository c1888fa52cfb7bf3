package billing

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParseUrl(t *testing.T, raw string) *url.URL {
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return parsed
}

func TestQueryLink(t *testing.T) {
	deriver := LinkDeriver{NewQueryLink("get_facture", "https://moncompte.mediapart.fr/base/moncompte/")}

	link, err := deriver.Derive("index.php?get_facture=ABC123&sess=xyz")
	require.NoError(t, err)
	require.Equal(t, "ABC123", link.BillId)
	require.Equal(
		t,
		"https://moncompte.mediapart.fr/base/moncompte/index.php?get_facture=ABC123&sess=xyz",
		link.FileUrl,
	)
}

func TestPathLink(t *testing.T) {
	base := mustParseUrl(t, "https://moncompte.mediapart.fr/abonnement/")
	deriver := LinkDeriver{NewPathLink("facture", base)}

	link, err := deriver.Derive("/facture/F-2023-0042/pdf")
	require.NoError(t, err)
	require.Equal(t, "F-2023-0042", link.BillId)
	require.Equal(t, "https://moncompte.mediapart.fr/facture/F-2023-0042/pdf", link.FileUrl)

	link, err = deriver.Derive("https://www.mediapart.fr/facture/77/download")
	require.NoError(t, err)
	require.Equal(t, "77", link.BillId)
	require.Equal(t, "https://www.mediapart.fr/facture/77/download", link.FileUrl)

	// "facture" must be a whole path segment
	_, err = deriver.Derive("/mesfacture/77/download")
	require.True(t, errors.Is(err, ErrUnresolvableLink))
}

func TestDeriveUnresolvable(t *testing.T) {
	base := mustParseUrl(t, "https://moncompte.mediapart.fr")
	deriver := LinkDeriver{
		NewQueryLink("get_facture", "https://moncompte.mediapart.fr/base/moncompte/"),
		NewPathLink("facture", base),
	}

	for _, href := range []string{"", "   ", "index.php?get_facture=", "/abonnement/offrir", "index.php?facture=1"} {
		_, err := deriver.Derive(href)
		require.Error(t, err, href)
		require.True(t, errors.Is(err, ErrUnresolvableLink), href)
	}
}

func TestQueryLinkReadsWholeParameter(t *testing.T) {
	deriver := LinkDeriver{NewQueryLink("get_facture", testPrefix)}

	_, err := deriver.Derive("index.php?not_get_facture=X")
	require.True(t, errors.Is(err, ErrUnresolvableLink))

	link, err := deriver.Derive("index.php?not_get_facture=X&get_facture=AB%2DC")
	require.NoError(t, err)
	require.Equal(t, "AB-C", link.BillId)
}

func TestDeriveRejectsUnsafeBillIds(t *testing.T) {
	base := mustParseUrl(t, "https://moncompte.mediapart.fr/")
	deriver := LinkDeriver{
		NewQueryLink("get_facture", testPrefix),
		NewPathLink("facture", base),
	}

	for _, href := range []string{
		"index.php?get_facture=../../../../tmp/evil",
		"index.php?get_facture=AB%2FC",
		"index.php?get_facture=..",
		"/facture/..%5Cevil/pdf",
		"/facture/a%20b/pdf",
	} {
		_, err := deriver.Derive(href)
		require.True(t, errors.Is(err, ErrUnresolvableLink), href)
	}
}
