// Package tui implements the interactive search screen of udpsearch.
//
// The screen is a Bubble Tea model. It starts a search as soon as it is
// shown, displays a spinner with the elapsed time, then renders the server
// that answered or troubleshooting hints when none did. Pressing 'r' searches
// again and 'q' quits, cancelling a search in progress.
//
// Every screen is wrapped by RenderApplicationContainer, which draws the
// application header, a key help footer and the outer border.
//
// Example:
//
//	searcher := discovery.NewSearcher()
//	model := tui.NewSearchModel(searcher.SearchWithContext, searcher.Timeout, "")
//	final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	found := final.(tui.SearchModel).FoundServers()
package tui
