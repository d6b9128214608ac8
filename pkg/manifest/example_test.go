package manifest_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/appforge/appforge/pkg/manifest"
)

func ExampleCodec_Decode() {
	codec, err := manifest.NewCodec(zerolog.Nop())
	if err != nil {
		panic(err)
	}

	doc := `{
		"serverSchemaVersion": 1,
		"exportedApplication": {"name": "Orders"},
		"pageList": [{"id": "p1", "unpublishedPage": {"name": "Home"}}],
		"actionCollectionList": [
			{"gitSyncId": "s1", "unpublishedCollection": {"name": "utils", "pageId": "Home"}}
		]
	}`

	m, err := codec.Decode(context.Background(), strings.NewReader(doc))
	if err != nil {
		panic(err)
	}

	fmt.Println(m.ExportedApplication.Name, m.DefaultPageName())
	for _, c := range m.ActionCollectionList {
		fmt.Println(c.Name(), c.UnpublishedCollection.PageID)
	}
	// Output:
	// Orders Home
	// utils Home
}
