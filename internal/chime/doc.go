// Package chime decides which page audio is the host application's new-mail
// chime and models how the browser script redirects it to a custom sound.
//
// Policy.Classify is a pure function over an Element description, so the
// heuristic can be tuned and tested without a browser. The same Policy is
// published to the page (see /chime/env.js) and applied by
// internal/assets/dist/chime.js.
//
// Interceptor owns the installation state that the script keeps per page:
// the play patch, the Audio constructor patch, the mutation observer and
// the bound preview links. Every step is idempotent and does nothing when no
// custom sound is configured.
package chime
