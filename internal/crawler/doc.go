// Package crawler discovers images on a single website.
//
// # Architecture
//
// The Spider walks the pages of one host breadth first, starting from a
// URL, up to a depth, page and image limit. The Parser extracts image
// references and same-host links from each HTML page with goquery.
//
// Images are recognised from:
//   - img src, data-src and data-lazy-src
//   - srcset of img and picture > source
//   - CSS background-image declarations
//
// # Politeness
//
// The spider waits between page requests and, unless disabled, honours
// robots.txt for every page it fetches. A robots.txt that cannot be read
// allows crawling.
//
// # Usage
//
//	spider := crawler.NewSpider(httpClient, crawler.WithMaxDepth(2))
//	result, err := spider.Crawl(ctx, "https://shop.example.com/boxes")
package crawler
