package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAttrValues(t *testing.T) {
	doc, err := Parse([]byte(`<form>
		<input type="checkbox" name="Transactions" value="11">
		<input type="checkbox" name="Transactions" value=" 12 ">
		<input type="checkbox" name="Transactions" value="">
		<input type="checkbox" name="Other" value="99">
	</form>`))
	require.NoError(t, err)

	values := AttrValues(doc.Find(`input[name="Transactions"]`), "value")
	require.Equal(t, []string{"11", "12"}, values)
}

func TestCleanText(t *testing.T) {
	doc, err := Parse([]byte("<p>  Total \n\n  balance\t</p>"))
	require.NoError(t, err)
	require.Equal(t, "Total balance", CleanText(doc.Find("p").Nodes[0]))

	doc, err = Parse([]byte("<li>Invalid\n\tlogin\u200b attempt.</li>"))
	require.NoError(t, err)
	require.Equal(t, "Invalid login attempt.", CleanText(doc.Find("li").Nodes[0]))
}
