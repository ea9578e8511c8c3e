package plugin

// Package plugin provides JavaScript transforms for resolved image URLs.
//
// Plugins are JavaScript files loaded from a directory at startup and run in
// filename order. Each plugin must define a transform(url, picture) function
// returning the new URL. Returning a non-string or an empty string keeps the
// URL unchanged.
//
// Example plugin:
//
//	// Serve arweave images through a gateway mirror
//	function transform(url, picture) {
//	    if (url.indexOf("https://arweave.net/") === 0) {
//	        return "https://ar-io.dev/" + url.substring(20);
//	    }
//	    return url;
//	}
