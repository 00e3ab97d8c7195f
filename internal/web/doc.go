// Package web serves the chime settings UI and the endpoints the browser
// script talks to.
//
// Pages (login, settings) use cookie sessions. The upload, sound and env.js
// endpoints also accept bearer tokens; session callers must present the
// per-session request token in the _token field or the X-Chime-Token header.
//
// Failed password logins are counted per username and client address when
// Config.Logins is set; a throttled login gets 429.
//
// Upload outcomes are a sound.Reason. Script callers get JSON with the mapped
// status code; form posts get a flash cookie and a redirect back to the
// settings page.
package web
